package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"kairos/launch/internal/deploy"
	"kairos/launch/internal/github"
	"kairos/launch/internal/model"
	"kairos/launch/internal/product"
	"kairos/launch/internal/vercel"
	"kairos/launch/pkg/logging"
)

// DeployPlatform is the subset of the hosting platform API a deployment needs.
type DeployPlatform interface {
	CreateProject(ctx context.Context, token string, opts vercel.CreateProjectOptions) (*vercel.Project, error)
	GetProject(ctx context.Context, token, projectID string) (*vercel.Project, error)
	CreateEnvVar(ctx context.Context, token, projectID, key, value string, targets []string) error
	CreateDeployment(ctx context.Context, token string, opts vercel.CreateDeploymentOptions) (*vercel.Deployment, error)
	StatusFunc(token string) deploy.StatusFunc
}

type RepositoryHost interface {
	RepositoryAccess(ctx context.Context, token, owner, repo string) (*github.Repository, error)
}

type ProductCatalog interface {
	Load(productID string) (*product.Config, error)
	Validator() *validator.Validate
}

type StartDeploymentRequest struct {
	UserID       string
	UserEmail    string
	ProductID    string
	PurchaseCode string
	UserEnvVars  map[string]string
}

type StartDeploymentResult struct {
	InstallationID uuid.UUID `json:"installationId"`
	ProjectID      string    `json:"projectId"`
	ProjectName    string    `json:"projectName"`
	DeploymentID   string    `json:"deploymentId"`
}

type DeploymentStatusRequest struct {
	UserID       string
	DeploymentID string
	// InstallationID is optional; when set, terminal results are recorded on it.
	InstallationID string
	Poll           bool
}

type DeployService interface {
	StartDeployment(ctx context.Context, req StartDeploymentRequest) (*StartDeploymentResult, error)
	// DeploymentStatus returns one observation, or blocks until the deployment
	// settles when req.Poll is set.
	DeploymentStatus(ctx context.Context, req DeploymentStatusRequest) (deploy.DeploymentStatus, error)
	// WatchDeployment streams every observation until a terminal status.
	WatchDeployment(ctx context.Context, req DeploymentStatusRequest) (iter.Seq[deploy.DeploymentStatus], error)
}

type DeployOptions struct {
	// GitHubToken enables the repository access check; empty skips it.
	GitHubToken string
	// Framework is used when a product does not name one.
	Framework string
}

type deployService struct {
	catalog       ProductCatalog
	licenses      LicenseService
	connections   ConnectionService
	installations InstallationService
	audit         AuditService
	platform      DeployPlatform
	repoHost      RepositoryHost
	poller        *deploy.Poller
	opts          DeployOptions
}

func NewDeployService(
	catalog ProductCatalog,
	licenses LicenseService,
	connections ConnectionService,
	installations InstallationService,
	audit AuditService,
	platform DeployPlatform,
	repoHost RepositoryHost,
	poller *deploy.Poller,
	opts DeployOptions,
) DeployService {
	return &deployService{
		catalog:       catalog,
		licenses:      licenses,
		connections:   connections,
		installations: installations,
		audit:         audit,
		platform:      platform,
		repoHost:      repoHost,
		poller:        poller,
		opts:          opts,
	}
}

type envVar struct {
	key, value string
}

func (s *deployService) StartDeployment(ctx context.Context, req StartDeploymentRequest) (*StartDeploymentResult, error) {
	logger := logging.FromContext(ctx).With(
		zap.String("product_id", req.ProductID),
		zap.String("user_id", req.UserID),
	)

	// 1. Product config
	cfg, err := s.catalog.Load(req.ProductID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) || errors.Is(err, product.ErrInvalidID) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("load product: %w", err)
	}

	// 2. Env vars are checked before anything remote happens
	vars, err := s.collectEnvVars(cfg, req)
	if err != nil {
		return nil, err
	}

	vercelToken, err := s.connections.Token(ctx, req.UserID, ProviderVercel)
	if err != nil {
		return nil, fmt.Errorf("vercel: %w", err)
	}

	// 3. License
	result, err := s.licenses.Verify(ctx, req.UserID, cfg.Marketplace.ItemID)
	if err != nil {
		return nil, fmt.Errorf("envato: %w", err)
	}
	if result.Err != nil {
		return nil, fmt.Errorf("verify license: %w", result.Err)
	}
	if !result.Verified {
		return nil, ErrLicenseNotVerified
	}
	if err := s.licenses.CheckPurchaseCode(ctx, req.UserID, cfg.Marketplace.ItemID, req.PurchaseCode); err != nil {
		return nil, err
	}

	// 4. Repository access
	repo := cfg.Repository
	if s.opts.GitHubToken != "" && s.repoHost != nil {
		if _, err := s.repoHost.RepositoryAccess(ctx, s.opts.GitHubToken, repo.Owner, repo.Repo); err != nil {
			logger.Warn("repository access check failed", zap.Error(err))
			return nil, fmt.Errorf("%w: %v", ErrRepositoryInaccessible, err)
		}
	}

	// 5. Project
	framework := cfg.Deployment.Framework
	if framework == "" {
		framework = s.opts.Framework
	}
	projectName := product.ProjectName(cfg.Product.ID, req.PurchaseCode)
	project, err := s.platform.CreateProject(ctx, vercelToken, vercel.CreateProjectOptions{
		Name:            projectName,
		Framework:       framework,
		BuildCommand:    cfg.Deployment.BuildCommand,
		OutputDirectory: cfg.Deployment.OutputDirectory,
		InstallCommand:  cfg.Deployment.InstallCommand,
		GitRepository: &vercel.GitRepository{
			Type: repo.Provider,
			Repo: repo.Owner + "/" + repo.Repo,
			Ref:  repo.Branch,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	if project.Name != "" {
		projectName = project.Name
	}

	// 6. Environment
	for _, v := range vars {
		if err := s.platform.CreateEnvVar(ctx, vercelToken, project.ID, v.key, v.value, vercel.DefaultTargets); err != nil {
			return nil, fmt.Errorf("inject %s: %w", v.key, err)
		}
	}

	// 7. Deployment
	deployment, err := s.platform.CreateDeployment(ctx, vercelToken, vercel.CreateDeploymentOptions{
		Name:    projectName,
		Project: project.ID,
		Target:  "production",
		GitSource: vercel.GitSource{
			Type: repo.Provider,
			Org:  repo.Owner,
			Repo: repo.Repo,
			Ref:  repo.Branch,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create deployment: %w", err)
	}
	deploymentID := deployment.Identifier()

	// 8. Installation record
	installation := &model.Installation{
		ProductID:          cfg.Product.ID,
		PurchaseCode:       req.PurchaseCode,
		UserID:             req.UserID,
		UserEmail:          req.UserEmail,
		VercelProjectID:    project.ID,
		VercelDeploymentID: deploymentID,
		DeploymentURL:      "https://" + projectName + ".vercel.app",
		Status:             model.InstallationPending,
		Metadata: model.JSONMap{
			"projectName":         projectName,
			"userEnvVarsProvided": len(req.UserEnvVars) > 0,
		},
	}
	if err := s.installations.Record(ctx, installation); err != nil {
		return nil, err
	}

	s.audit.Log(ctx, AuditDeploymentStarted, req.UserID, map[string]interface{}{
		"productId":      cfg.Product.ID,
		"projectId":      project.ID,
		"deploymentId":   deploymentID,
		"installationId": installation.ID.String(),
	})
	logger.Info("deployment started",
		zap.String("project_id", project.ID),
		zap.String("deployment_id", deploymentID),
	)

	return &StartDeploymentResult{
		InstallationID: installation.ID,
		ProjectID:      project.ID,
		ProjectName:    projectName,
		DeploymentID:   deploymentID,
	}, nil
}

// collectEnvVars orders the variables to inject: system values, then the
// product's declared variables, then any extra non-blank user values.
// Config values are injected verbatim.
func (s *deployService) collectEnvVars(cfg *product.Config, req StartDeploymentRequest) ([]envVar, error) {
	vars := []envVar{
		{"LICENSE_KEY", req.PurchaseCode},
		{"USER_EMAIL", req.UserEmail},
		{"PRODUCT_ID", cfg.Product.ID},
	}
	seen := map[string]bool{"LICENSE_KEY": true, "USER_EMAIL": true, "PRODUCT_ID": true}

	for _, spec := range cfg.Deployment.RequiredEnvVars {
		seen[spec.Key] = true

		if spec.UserInput {
			value := strings.TrimSpace(req.UserEnvVars[spec.Key])
			if value == "" {
				if spec.Required {
					return nil, fmt.Errorf("%w: %s", ErrMissingEnvVar, spec.Key)
				}
				continue
			}
			if err := spec.ValidateValue(s.catalog.Validator(), value); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidEnvVar, err)
			}
			vars = append(vars, envVar{spec.Key, req.UserEnvVars[spec.Key]})
			continue
		}
		if spec.Value != "" {
			vars = append(vars, envVar{spec.Key, spec.Value})
		}
	}

	extra := make([]string, 0, len(req.UserEnvVars))
	for key := range req.UserEnvVars {
		if !seen[key] {
			extra = append(extra, key)
		}
	}
	slices.Sort(extra)
	for _, key := range extra {
		if value := req.UserEnvVars[key]; strings.TrimSpace(value) != "" {
			vars = append(vars, envVar{key, value})
		}
	}
	return vars, nil
}

func (s *deployService) DeploymentStatus(ctx context.Context, req DeploymentStatusRequest) (deploy.DeploymentStatus, error) {
	fn, installationID, err := s.prepareStatus(ctx, req)
	if err != nil {
		return deploy.DeploymentStatus{}, err
	}

	if !req.Poll {
		return s.poller.Check(ctx, req.DeploymentID, fn), nil
	}

	status := s.poller.Poll(ctx, req.DeploymentID, fn, nil)
	if installationID != uuid.Nil {
		s.finish(ctx, req, installationID, status)
	}
	return status, nil
}

func (s *deployService) WatchDeployment(ctx context.Context, req DeploymentStatusRequest) (iter.Seq[deploy.DeploymentStatus], error) {
	fn, installationID, err := s.prepareStatus(ctx, req)
	if err != nil {
		return nil, err
	}

	return func(yield func(deploy.DeploymentStatus) bool) {
		for status := range s.poller.Watch(ctx, req.DeploymentID, fn) {
			if status.Status.Terminal() && installationID != uuid.Nil {
				s.finish(ctx, req, installationID, status)
			}
			if !yield(status) {
				return
			}
		}
	}, nil
}

// prepareStatus resolves the caller's platform token and, when given, the
// installation the result should be recorded on. The installation must be the
// caller's, must own the deployment, and its project must still be visible
// to the token.
func (s *deployService) prepareStatus(ctx context.Context, req DeploymentStatusRequest) (deploy.StatusFunc, uuid.UUID, error) {
	token, err := s.connections.Token(ctx, req.UserID, ProviderVercel)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("vercel: %w", err)
	}

	if req.InstallationID == "" {
		return s.platform.StatusFunc(token), uuid.Nil, nil
	}
	id, err := uuid.Parse(req.InstallationID)
	if err != nil {
		return nil, uuid.Nil, ErrInstallationNotFound
	}
	installation, err := s.installations.Get(ctx, id)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if installation.UserID != req.UserID {
		return nil, uuid.Nil, ErrInstallationNotOwned
	}
	if installation.VercelDeploymentID != req.DeploymentID {
		return nil, uuid.Nil, ErrDeploymentMismatch
	}
	if installation.VercelProjectID != "" {
		if _, err := s.platform.GetProject(ctx, token, installation.VercelProjectID); err != nil {
			return nil, uuid.Nil, fmt.Errorf("vercel project: %w", err)
		}
	}
	return s.platform.StatusFunc(token), id, nil
}

// finish records a terminal status on the installation. Failures are only
// logged. A watch abandoned by the caller leaves the installation pending.
func (s *deployService) finish(ctx context.Context, req DeploymentStatusRequest, installationID uuid.UUID, status deploy.DeploymentStatus) {
	logger := logging.FromContext(ctx).With(
		zap.String("installation_id", installationID.String()),
		zap.String("deployment_id", req.DeploymentID),
	)
	if ctx.Err() != nil {
		logger.Info("status request ended before the deployment settled", zap.Error(ctx.Err()))
		return
	}

	switch status.Status {
	case deploy.StatusReady:
		if err := s.installations.MarkSucceeded(ctx, installationID, status.URL); err != nil {
			logger.Error("failed to mark installation succeeded", zap.Error(err))
		}
		s.audit.Log(ctx, AuditDeploymentCompleted, req.UserID, map[string]interface{}{
			"installationId": installationID.String(),
			"deploymentId":   req.DeploymentID,
			"url":            status.URL,
		})
	case deploy.StatusError:
		if err := s.installations.MarkFailed(ctx, installationID, status.Error); err != nil {
			logger.Error("failed to mark installation failed", zap.Error(err))
		}
		s.audit.Log(ctx, AuditDeploymentFailed, req.UserID, map[string]interface{}{
			"installationId": installationID.String(),
			"deploymentId":   req.DeploymentID,
			"error":          status.Error,
		})
	}
}
