package config

import (
	"autoengineer/internal/tools/files"
)

// FilesOptions translates the files section into workspace options.
// Unparseable sizes fall back to the package defaults; Validate reports them.
func (c *Config) FilesOptions() []files.Option {
	f := c.Files
	opts := []files.Option{
		files.WithAllowHidden(f.AllowHidden),
		files.WithMaxListEntries(f.MaxListEntries),
	}
	if n, err := parseSize(f.MaxReadSize); err == nil {
		opts = append(opts, files.WithMaxReadBytes(n))
	}
	if n, err := parseSize(f.MaxWriteSize); err == nil {
		opts = append(opts, files.WithMaxWriteBytes(n))
	}
	return opts
}
