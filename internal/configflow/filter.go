package configflow

import "github.com/polarismesh/polaris-go/pkg/model"

// ConfigFilter transforms a config file's content after retrieval, e.g.
// decrypting ConfigFile.EncryptAlgo/EncryptKey-protected content before it
// reaches the caller. It satisfies internal/plugin.Plugin so it can be
// registered under plugin.KindConfigFilter.
type ConfigFilter interface {
	Name() string
	Init() error
	Destroy() error
	Apply(file *model.ConfigFile) (*model.ConfigFile, error)
}

// identityFilter is the default ConfigFilter: it returns the file
// unmodified. The SDK does not ship a cryptographic implementation; the
// algorithm named by ConfigFile.EncryptAlgo is supplied by the embedding
// application as a plugin.
type identityFilter struct{}

// NewIdentityFilter builds the default no-op ConfigFilter.
func NewIdentityFilter() ConfigFilter { return identityFilter{} }

func (identityFilter) Name() string   { return "noopConfigFilter" }
func (identityFilter) Init() error    { return nil }
func (identityFilter) Destroy() error { return nil }

func (identityFilter) Apply(file *model.ConfigFile) (*model.ConfigFile, error) {
	return file, nil
}
