package product

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const fileSuffix = ".config.json"

var (
	ErrNotFound     = errors.New("product config not found")
	ErrInvalidID    = errors.New("invalid product id")
	validProductID  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)
	filenamePattern = regexp.MustCompile(`^(.+)\.config\.json$`)
)

// Registry reads <dir>/<productId>.config.json files.
type Registry struct {
	dir      string
	validate *validator.Validate
	logger   *zap.Logger
}

func NewRegistry(dir string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{dir: dir, validate: validator.New(), logger: logger}
}

// Validator exposes the registry's validator for value checks.
func (r *Registry) Validator() *validator.Validate {
	return r.validate
}

func (r *Registry) Load(productID string) (*Config, error) {
	if !validProductID.MatchString(productID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, productID)
	}

	data, err := os.ReadFile(filepath.Join(r.dir, productID+fileSuffix))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, productID)
		}
		return nil, fmt.Errorf("failed to load config for product %s: %w", productID, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config for product %s: %w", productID, err)
	}
	if err := r.validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("failed to load config for product %s: %w", productID, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadAll loads every config in the directory. Broken files are logged and
// skipped; a missing directory yields an empty set.
func (r *Registry) LoadAll() (map[string]*Config, error) {
	configs := make(map[string]*Config)

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return configs, nil
		}
		return nil, err
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileSuffix) {
			continue
		}
		id, ok := ProductIDFromFilename(e.Name())
		if !ok {
			continue
		}
		cfg, err := r.Load(id)
		if err != nil {
			r.logger.Error("failed to load product config", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		configs[id] = cfg
	}
	return configs, nil
}

func ProductIDFromFilename(name string) (string, bool) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	return m[1], true
}
