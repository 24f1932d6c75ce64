package model

// ConfigFile is an opaque, versioned configuration payload.
type ConfigFile struct {
	Namespace string
	Group     string
	Name      string
	Version   uint64
	Content   string
	Labels    map[string]string

	EncryptAlgo string
	EncryptKey  string
}

// Key returns the (namespace, group, name) triple used to address a file,
// independent of its version.
func (f *ConfigFile) Key() string {
	return f.Namespace + "/" + f.Group + "/" + f.Name
}

// ConfigFileRelease identifies a single published version by md5 of content.
type ConfigFileRelease struct {
	Namespace   string
	Group       string
	FileName    string
	ReleaseName string
	MD5         string
}

// ConfigGroup is the catalog of files published under one config group,
// used by list/watch-group flows.
type ConfigGroup struct {
	Namespace string
	Group     string
	Files     []*ConfigFile
	Revision  string
}
