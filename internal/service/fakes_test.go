package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"kairos/launch/internal/deploy"
	"kairos/launch/internal/envato"
	"kairos/launch/internal/github"
	"kairos/launch/internal/license"
	"kairos/launch/internal/model"
	"kairos/launch/internal/product"
	"kairos/launch/internal/repository"
	"kairos/launch/internal/vercel"
	"kairos/launch/pkg/crypto"
)

type memAuditRepo struct {
	mu      sync.Mutex
	entries []model.AuditLog
	err     error
}

func (r *memAuditRepo) Create(_ context.Context, entry *model.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	entry.ID = uuid.New()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *memAuditRepo) List(_ context.Context, action string, limit int) ([]model.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.AuditLog
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if action == "" || r.entries[i].Action == action {
			out = append(out, r.entries[i])
		}
	}
	return out, nil
}

func (r *memAuditRepo) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

type memInstallationRepo struct {
	mu    sync.Mutex
	items []model.Installation
}

func (r *memInstallationRepo) Create(_ context.Context, installation *model.Installation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, *installation)
	return nil
}

func (r *memInstallationRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Installation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.items {
		if r.items[i].ID == id {
			item := r.items[i]
			return &item, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memInstallationRepo) UpdateStatus(_ context.Context, id uuid.UUID, status model.InstallationStatus, deploymentURL string, errorMessage *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.items {
		if r.items[i].ID == id {
			r.items[i].Status = status
			r.items[i].ErrorMessage = errorMessage
			if deploymentURL != "" {
				r.items[i].DeploymentURL = deploymentURL
			}
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *memInstallationRepo) filter(match func(model.Installation) bool) []model.Installation {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Installation
	for _, item := range r.items {
		if match(item) {
			out = append(out, item)
		}
	}
	return out
}

func (r *memInstallationRepo) ListByProduct(_ context.Context, productID, userID string) ([]model.Installation, error) {
	return r.filter(func(i model.Installation) bool {
		return i.ProductID == productID && (userID == "" || i.UserID == userID)
	}), nil
}

func (r *memInstallationRepo) ListByPurchaseCode(_ context.Context, purchaseCode, userID string) ([]model.Installation, error) {
	return r.filter(func(i model.Installation) bool {
		return i.PurchaseCode == purchaseCode && (userID == "" || i.UserID == userID)
	}), nil
}

func (r *memInstallationRepo) FindByLicense(_ context.Context, productID, purchaseCode string) (*model.Installation, error) {
	found := r.filter(func(i model.Installation) bool {
		return i.ProductID == productID && i.PurchaseCode == purchaseCode
	})
	if len(found) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &found[0], nil
}

type fakeMarketplace struct {
	mu        sync.Mutex
	owned     map[string]bool
	purchases map[string]int64 // purchase code -> item id
	err       error
	calls     int
	lastToken string

	accountErr error
	findErr    error
	findCalls  int
}

func (m *fakeMarketplace) HasPurchased(_ context.Context, token, itemID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastToken = token
	if m.err != nil {
		return false, m.err
	}
	return m.owned[itemID], nil
}

func (m *fakeMarketplace) FindPurchase(_ context.Context, token, code string) (*envato.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findCalls++
	m.lastToken = token
	if m.findErr != nil {
		return nil, m.findErr
	}
	itemID, ok := m.purchases[code]
	if !ok {
		return nil, nil
	}
	p := &envato.Purchase{Code: code}
	p.Item.ID = itemID
	return p, nil
}

func (m *fakeMarketplace) Account(_ context.Context, token string) (*envato.Account, error) {
	if m.accountErr != nil {
		return nil, m.accountErr
	}
	return &envato.Account{Username: "buyer-" + token}, nil
}

type fakePlatform struct {
	mu          sync.Mutex
	projects    []vercel.CreateProjectOptions
	envKeys     []string
	envValues   map[string]string
	deployments []vercel.CreateDeploymentOptions
	projectErr  error
	getProjErr  error
	getProjects []string
	snapshots   []deploy.Snapshot
	statusCalls int
	statusToken string
}

func (p *fakePlatform) CreateProject(_ context.Context, _ string, opts vercel.CreateProjectOptions) (*vercel.Project, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.projectErr != nil {
		return nil, p.projectErr
	}
	p.projects = append(p.projects, opts)
	return &vercel.Project{ID: fmt.Sprintf("prj_%d", len(p.projects)), Name: opts.Name}, nil
}

func (p *fakePlatform) GetProject(_ context.Context, _, projectID string) (*vercel.Project, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.getProjects = append(p.getProjects, projectID)
	if p.getProjErr != nil {
		return nil, p.getProjErr
	}
	return &vercel.Project{ID: projectID}, nil
}

func (p *fakePlatform) CreateEnvVar(_ context.Context, _, _, key, value string, _ []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.envValues == nil {
		p.envValues = make(map[string]string)
	}
	p.envKeys = append(p.envKeys, key)
	p.envValues[key] = value
	return nil
}

func (p *fakePlatform) CreateDeployment(_ context.Context, _ string, opts vercel.CreateDeploymentOptions) (*vercel.Deployment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deployments = append(p.deployments, opts)
	return &vercel.Deployment{ID: fmt.Sprintf("dpl_%d", len(p.deployments)), ReadyState: "QUEUED"}, nil
}

func (p *fakePlatform) StatusFunc(token string) deploy.StatusFunc {
	return func(_ context.Context, _ string) (deploy.Snapshot, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.statusToken = token
		if len(p.snapshots) == 0 {
			return deploy.Snapshot{}, errors.New("no snapshot")
		}
		i := p.statusCalls
		if i >= len(p.snapshots) {
			i = len(p.snapshots) - 1
		}
		p.statusCalls++
		return p.snapshots[i], nil
	}
}

func (p *fakePlatform) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.projects) + len(p.envKeys) + len(p.deployments)
}

type fakeRepoHost struct {
	err   error
	calls int
}

func (h *fakeRepoHost) RepositoryAccess(_ context.Context, _, owner, repo string) (*github.Repository, error) {
	h.calls++
	if h.err != nil {
		return nil, h.err
	}
	return &github.Repository{Name: repo, FullName: owner + "/" + repo, Private: true}, nil
}

const testSecret = "0123456789abcdef0123456789abcdef"

const shopConfig = `{
  "product": {"id": "shop", "name": "Shop Starter"},
  "marketplace": {"platform": "codecanyon", "itemId": "1001"},
  "repository": {"provider": "github", "owner": "acme", "repo": "shop", "branch": "release"},
  "deployment": {
    "platform": "vercel",
    "requiredEnvVars": [
      {"key": "NEXT_PUBLIC_SITE_NAME", "value": "Shop"},
      {"key": "STRIPE_KEY", "userInput": true, "required": true,
       "validation": {"type": "regex", "pattern": "^sk_(test|live)_"}},
      {"key": "ANALYTICS_ID", "userInput": true}
    ]
  }
}`

// fakeClock advances instead of waiting.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
	return nil
}

type fixture struct {
	audit         *memAuditRepo
	installRepo   *memInstallationRepo
	market        *fakeMarketplace
	platform      *fakePlatform
	repoHost      *fakeRepoHost
	store         repository.StateStore
	connections   ConnectionService
	licenses      LicenseService
	installations InstallationService
	deploys       DeployService
}

func newFixture(t *testing.T, opts DeployOptions) *fixture {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shop.config.json"), []byte(shopConfig), 0o600))

	box, err := crypto.NewBox(testSecret)
	require.NoError(t, err)
	licenseStore, err := license.NewMemoryStore(16)
	require.NoError(t, err)

	market := &fakeMarketplace{
		owned:     map[string]bool{"1001": true},
		purchases: map[string]int64{"ABCD-1234-EF56AB": 1001},
	}
	f := &fixture{
		audit:       &memAuditRepo{},
		installRepo: &memInstallationRepo{},
		market:      market,
		platform:    &fakePlatform{},
		repoHost:    &fakeRepoHost{},
		store:       repository.NewMemoryStateStore(),
	}
	audit := NewAuditService(f.audit)
	f.connections = NewConnectionService(f.store, box, f.market, audit)
	f.licenses = NewLicenseService(license.New(licenseStore), f.market, f.connections, audit)
	f.installations = NewInstallationService(f.installRepo, audit)

	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	poller := deploy.NewPoller(deploy.WithClock(clock.now, clock.sleep))
	f.deploys = NewDeployService(
		product.NewRegistry(dir, nil), f.licenses, f.connections, f.installations, audit,
		f.platform, f.repoHost, poller, opts,
	)
	return f
}

func (f *fixture) connect(t *testing.T, userID string, providers ...Provider) {
	t.Helper()
	for _, p := range providers {
		require.NoError(t, f.connections.Connect(context.Background(), userID, p, string(p)+"-token", 0))
	}
}
