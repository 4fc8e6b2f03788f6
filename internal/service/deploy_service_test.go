package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kairos/launch/internal/deploy"
	"kairos/launch/internal/model"
	"kairos/launch/internal/upstream"
)

func startRequest(userVars map[string]string) StartDeploymentRequest {
	return StartDeploymentRequest{
		UserID:       "user-1",
		UserEmail:    "buyer@example.com",
		ProductID:    "shop",
		PurchaseCode: "ABCD-1234-EF56AB",
		UserEnvVars:  userVars,
	}
}

func TestStartDeployment(t *testing.T) {
	f := newFixture(t, DeployOptions{Framework: "vite"})
	f.connect(t, "user-1", ProviderEnvato, ProviderVercel)
	ctx := context.Background()

	res, err := f.deploys.StartDeployment(ctx, startRequest(map[string]string{
		"STRIPE_KEY":   "sk_test_123",
		"ANALYTICS_ID": "  ",
		"EXTRA_FLAG":   "on",
		"EMPTY_EXTRA":  "",
	}))
	require.NoError(t, err)

	assert.Equal(t, "shop-ef56ab", res.ProjectName)
	assert.Equal(t, "prj_1", res.ProjectID)
	assert.Equal(t, "dpl_1", res.DeploymentID)
	assert.NotEqual(t, uuid.Nil, res.InstallationID)

	require.Len(t, f.platform.projects, 1)
	project := f.platform.projects[0]
	assert.Equal(t, "nextjs", project.Framework)
	require.NotNil(t, project.GitRepository)
	assert.Equal(t, "acme/shop", project.GitRepository.Repo)
	assert.Equal(t, "release", project.GitRepository.Ref)

	assert.Equal(t, []string{
		"LICENSE_KEY", "USER_EMAIL", "PRODUCT_ID",
		"NEXT_PUBLIC_SITE_NAME", "STRIPE_KEY", "EXTRA_FLAG",
	}, f.platform.envKeys)
	assert.Equal(t, "ABCD-1234-EF56AB", f.platform.envValues["LICENSE_KEY"])
	assert.Equal(t, "sk_test_123", f.platform.envValues["STRIPE_KEY"])

	require.Len(t, f.platform.deployments, 1)
	assert.Equal(t, "prj_1", f.platform.deployments[0].Project)
	assert.Equal(t, "acme", f.platform.deployments[0].GitSource.Org)

	installation, err := f.installations.Get(ctx, res.InstallationID)
	require.NoError(t, err)
	assert.Equal(t, model.InstallationPending, installation.Status)
	assert.Equal(t, "dpl_1", installation.VercelDeploymentID)
	assert.Equal(t, "https://shop-ef56ab.vercel.app", installation.DeploymentURL)

	assert.Equal(t, []string{
		AuditUserSignIn, AuditVercelConnected,
		AuditLicenseVerified, AuditInstallationCreated, AuditDeploymentStarted,
	}, f.audit.actions())
	assert.Equal(t, "envato-token", f.market.lastToken)
	assert.Equal(t, 1, f.market.findCalls)
}

func TestStartDeployment_ValidatesEnvBeforeRemoteCalls(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		wantErr error
	}{
		{"missing required", nil, ErrMissingEnvVar},
		{"blank required", map[string]string{"STRIPE_KEY": "   "}, ErrMissingEnvVar},
		{"invalid value", map[string]string{"STRIPE_KEY": "pk_live_1"}, ErrInvalidEnvVar},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, DeployOptions{})
			f.connect(t, "user-1", ProviderEnvato, ProviderVercel)

			_, err := f.deploys.StartDeployment(context.Background(), startRequest(tt.vars))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, f.market.calls)
			assert.Zero(t, f.platform.calls())
		})
	}
}

func TestStartDeployment_Failures(t *testing.T) {
	vars := map[string]string{"STRIPE_KEY": "sk_live_1"}

	t.Run("unknown product", func(t *testing.T) {
		f := newFixture(t, DeployOptions{})
		req := startRequest(vars)
		req.ProductID = "nope"
		_, err := f.deploys.StartDeployment(context.Background(), req)
		assert.ErrorIs(t, err, ErrProductNotFound)
	})

	t.Run("vercel not connected", func(t *testing.T) {
		f := newFixture(t, DeployOptions{})
		f.connect(t, "user-1", ProviderEnvato)
		_, err := f.deploys.StartDeployment(context.Background(), startRequest(vars))
		assert.ErrorIs(t, err, ErrProviderNotConnected)
		assert.Zero(t, f.platform.calls())
	})

	t.Run("envato not connected", func(t *testing.T) {
		f := newFixture(t, DeployOptions{})
		f.connect(t, "user-1", ProviderVercel)
		_, err := f.deploys.StartDeployment(context.Background(), startRequest(vars))
		assert.ErrorIs(t, err, ErrProviderNotConnected)
	})

	t.Run("license not owned", func(t *testing.T) {
		f := newFixture(t, DeployOptions{})
		f.connect(t, "user-1", ProviderEnvato, ProviderVercel)
		f.market.owned = nil
		_, err := f.deploys.StartDeployment(context.Background(), startRequest(vars))
		assert.ErrorIs(t, err, ErrLicenseNotVerified)
		assert.Zero(t, f.platform.calls())
	})

	t.Run("marketplace failure", func(t *testing.T) {
		f := newFixture(t, DeployOptions{})
		f.connect(t, "user-1", ProviderEnvato, ProviderVercel)
		boom := errors.New("boom")
		f.market.err = boom
		_, err := f.deploys.StartDeployment(context.Background(), startRequest(vars))
		assert.ErrorIs(t, err, boom)
	})

	t.Run("purchase code unknown to buyer", func(t *testing.T) {
		f := newFixture(t, DeployOptions{})
		f.connect(t, "user-1", ProviderEnvato, ProviderVercel)
		req := startRequest(vars)
		req.PurchaseCode = "someone-elses-code"
		_, err := f.deploys.StartDeployment(context.Background(), req)
		assert.ErrorIs(t, err, ErrPurchaseCodeMismatch)
		assert.Zero(t, f.platform.calls())
	})

	t.Run("purchase code for another item", func(t *testing.T) {
		f := newFixture(t, DeployOptions{})
		f.connect(t, "user-1", ProviderEnvato, ProviderVercel)
		f.market.purchases["ABCD-1234-EF56AB"] = 2002
		_, err := f.deploys.StartDeployment(context.Background(), startRequest(vars))
		assert.ErrorIs(t, err, ErrPurchaseCodeMismatch)
		assert.Zero(t, f.platform.calls())
	})

	t.Run("purchase lookup failure", func(t *testing.T) {
		f := newFixture(t, DeployOptions{})
		f.connect(t, "user-1", ProviderEnvato, ProviderVercel)
		boom := errors.New("purchases unavailable")
		f.market.findErr = boom
		_, err := f.deploys.StartDeployment(context.Background(), startRequest(vars))
		assert.ErrorIs(t, err, boom)
		assert.Zero(t, f.platform.calls())
	})

	t.Run("repository inaccessible", func(t *testing.T) {
		f := newFixture(t, DeployOptions{GitHubToken: "gh"})
		f.connect(t, "user-1", ProviderEnvato, ProviderVercel)
		f.repoHost.err = errors.New("404")
		_, err := f.deploys.StartDeployment(context.Background(), startRequest(vars))
		assert.ErrorIs(t, err, ErrRepositoryInaccessible)
		assert.Equal(t, 1, f.repoHost.calls)
		assert.Zero(t, f.platform.calls())
	})

	t.Run("project creation", func(t *testing.T) {
		f := newFixture(t, DeployOptions{})
		f.connect(t, "user-1", ProviderEnvato, ProviderVercel)
		f.platform.projectErr = errors.New("name taken")
		_, err := f.deploys.StartDeployment(context.Background(), startRequest(vars))
		assert.ErrorContains(t, err, "name taken")
		assert.Empty(t, f.installRepo.items)
	})
}

func TestStartDeployment_DuplicateLicenseAllowed(t *testing.T) {
	f := newFixture(t, DeployOptions{})
	f.connect(t, "user-1", ProviderEnvato, ProviderVercel)
	ctx := context.Background()
	vars := map[string]string{"STRIPE_KEY": "sk_live_1"}

	first, err := f.deploys.StartDeployment(ctx, startRequest(vars))
	require.NoError(t, err)
	second, err := f.deploys.StartDeployment(ctx, startRequest(vars))
	require.NoError(t, err)

	assert.NotEqual(t, first.InstallationID, second.InstallationID)
	list, err := f.installations.ListByPurchaseCode(ctx, "ABCD-1234-EF56AB", "user-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
	// Second verification is served from the license cache.
	assert.Equal(t, 1, f.market.calls)
}

func startedInstallation(t *testing.T, f *fixture) *StartDeploymentResult {
	t.Helper()
	f.connect(t, "user-1", ProviderEnvato, ProviderVercel)
	res, err := f.deploys.StartDeployment(context.Background(), startRequest(map[string]string{"STRIPE_KEY": "sk_live_1"}))
	require.NoError(t, err)
	return res
}

func TestDeploymentStatus_PollRecordsSuccess(t *testing.T) {
	f := newFixture(t, DeployOptions{})
	res := startedInstallation(t, f)
	f.platform.snapshots = []deploy.Snapshot{
		{State: deploy.StateBuilding},
		{State: deploy.StateReady, URL: "https://shop-ef56ab.vercel.app"},
	}

	status, err := f.deploys.DeploymentStatus(context.Background(), DeploymentStatusRequest{
		UserID:         "user-1",
		DeploymentID:   res.DeploymentID,
		InstallationID: res.InstallationID.String(),
		Poll:           true,
	})
	require.NoError(t, err)
	assert.Equal(t, deploy.StatusReady, status.Status)
	assert.Equal(t, 100, status.Progress)
	assert.Equal(t, 2, f.platform.statusCalls)
	assert.Equal(t, "vercel-token", f.platform.statusToken)
	assert.Equal(t, []string{"prj_1"}, f.platform.getProjects)

	installation, err := f.installations.Get(context.Background(), res.InstallationID)
	require.NoError(t, err)
	assert.Equal(t, model.InstallationSuccess, installation.Status)
	assert.Equal(t, "https://shop-ef56ab.vercel.app", installation.DeploymentURL)
	assert.Contains(t, f.audit.actions(), AuditDeploymentCompleted)
}

func TestDeploymentStatus_PollRecordsFailure(t *testing.T) {
	f := newFixture(t, DeployOptions{})
	res := startedInstallation(t, f)
	f.platform.snapshots = []deploy.Snapshot{{State: deploy.StateQueued}, {State: deploy.StateCanceled}}

	status, err := f.deploys.DeploymentStatus(context.Background(), DeploymentStatusRequest{
		UserID:         "user-1",
		DeploymentID:   res.DeploymentID,
		InstallationID: res.InstallationID.String(),
		Poll:           true,
	})
	require.NoError(t, err)
	assert.Equal(t, deploy.StatusError, status.Status)

	installation, err := f.installations.Get(context.Background(), res.InstallationID)
	require.NoError(t, err)
	assert.Equal(t, model.InstallationFailed, installation.Status)
	require.NotNil(t, installation.ErrorMessage)
	assert.Equal(t, deploy.ErrFailed, *installation.ErrorMessage)
	assert.Contains(t, f.audit.actions(), AuditDeploymentFailed)
}

func TestDeploymentStatus_SingleCheck(t *testing.T) {
	f := newFixture(t, DeployOptions{})
	res := startedInstallation(t, f)
	f.platform.snapshots = []deploy.Snapshot{{State: deploy.StateReady, URL: "https://x.vercel.app"}}

	status, err := f.deploys.DeploymentStatus(context.Background(), DeploymentStatusRequest{
		UserID:         "user-1",
		DeploymentID:   res.DeploymentID,
		InstallationID: res.InstallationID.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, deploy.StatusReady, status.Status)
	assert.Equal(t, 1, f.platform.statusCalls)

	installation, err := f.installations.Get(context.Background(), res.InstallationID)
	require.NoError(t, err)
	assert.Equal(t, model.InstallationPending, installation.Status)
}

func TestDeploymentStatus_InstallationChecks(t *testing.T) {
	f := newFixture(t, DeployOptions{})
	res := startedInstallation(t, f)
	f.connect(t, "user-2", ProviderVercel)
	ctx := context.Background()

	_, err := f.deploys.DeploymentStatus(ctx, DeploymentStatusRequest{
		UserID: "user-2", DeploymentID: res.DeploymentID, InstallationID: res.InstallationID.String(),
	})
	assert.ErrorIs(t, err, ErrInstallationNotOwned)

	_, err = f.deploys.DeploymentStatus(ctx, DeploymentStatusRequest{
		UserID: "user-1", DeploymentID: res.DeploymentID, InstallationID: "not-a-uuid",
	})
	assert.ErrorIs(t, err, ErrInstallationNotFound)

	_, err = f.deploys.DeploymentStatus(ctx, DeploymentStatusRequest{
		UserID: "user-1", DeploymentID: res.DeploymentID, InstallationID: uuid.NewString(),
	})
	assert.ErrorIs(t, err, ErrInstallationNotFound)

	_, err = f.deploys.DeploymentStatus(ctx, DeploymentStatusRequest{
		UserID: "user-1", DeploymentID: "dpl_other", InstallationID: res.InstallationID.String(), Poll: true,
	})
	assert.ErrorIs(t, err, ErrDeploymentMismatch)

	_, err = f.deploys.DeploymentStatus(ctx, DeploymentStatusRequest{
		UserID: "user-3", DeploymentID: res.DeploymentID,
	})
	assert.ErrorIs(t, err, ErrProviderNotConnected)
	assert.Zero(t, f.platform.statusCalls)

	installation, err := f.installations.Get(ctx, res.InstallationID)
	require.NoError(t, err)
	assert.Equal(t, model.InstallationPending, installation.Status)
}

func TestDeploymentStatus_ProjectNoLongerVisible(t *testing.T) {
	f := newFixture(t, DeployOptions{})
	res := startedInstallation(t, f)
	f.platform.snapshots = []deploy.Snapshot{{State: deploy.StateReady}}
	f.platform.getProjErr = upstream.ErrNotFound

	_, err := f.deploys.DeploymentStatus(context.Background(), DeploymentStatusRequest{
		UserID:         "user-1",
		DeploymentID:   res.DeploymentID,
		InstallationID: res.InstallationID.String(),
		Poll:           true,
	})
	assert.ErrorIs(t, err, upstream.ErrNotFound)
	assert.Zero(t, f.platform.statusCalls)

	// Without an installation there is no project to look up.
	status, err := f.deploys.DeploymentStatus(context.Background(), DeploymentStatusRequest{
		UserID:       "user-1",
		DeploymentID: res.DeploymentID,
	})
	require.NoError(t, err)
	assert.Equal(t, deploy.StatusReady, status.Status)
}

func TestWatchDeployment(t *testing.T) {
	f := newFixture(t, DeployOptions{})
	res := startedInstallation(t, f)
	f.platform.snapshots = []deploy.Snapshot{
		{State: deploy.StateQueued},
		{State: deploy.StateBuilding},
		{State: deploy.StateReady, URL: "https://done.vercel.app"},
	}

	seq, err := f.deploys.WatchDeployment(context.Background(), DeploymentStatusRequest{
		UserID:         "user-1",
		DeploymentID:   res.DeploymentID,
		InstallationID: res.InstallationID.String(),
	})
	require.NoError(t, err)

	var got []deploy.Status
	for st := range seq {
		got = append(got, st.Status)
	}
	assert.Equal(t, []deploy.Status{deploy.StatusPending, deploy.StatusBuilding, deploy.StatusReady}, got)

	installation, err := f.installations.Get(context.Background(), res.InstallationID)
	require.NoError(t, err)
	assert.Equal(t, model.InstallationSuccess, installation.Status)
	assert.Equal(t, "https://done.vercel.app", installation.DeploymentURL)
}

func TestWatchDeployment_CanceledLeavesInstallationPending(t *testing.T) {
	f := newFixture(t, DeployOptions{})
	res := startedInstallation(t, f)
	f.platform.snapshots = []deploy.Snapshot{{State: deploy.StateBuilding}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	seq, err := f.deploys.WatchDeployment(ctx, DeploymentStatusRequest{
		UserID:         "user-1",
		DeploymentID:   res.DeploymentID,
		InstallationID: res.InstallationID.String(),
	})
	require.NoError(t, err)

	var last deploy.DeploymentStatus
	for st := range seq {
		last = st
		cancel()
	}
	assert.Equal(t, deploy.StatusError, last.Status)

	installation, err := f.installations.Get(context.Background(), res.InstallationID)
	require.NoError(t, err)
	assert.Equal(t, model.InstallationPending, installation.Status)
}
