package sqlitestore

import (
	"strings"
	"time"

	"github.com/RobertWHurst/docstream/stores"
)

type Config struct {
	file          string
	purgeInterval time.Duration
	options       []stores.Option
}

type ConfigFunc = func(c *Config)

// File stores documents in the SQLite database at file instead of memory.
func (c *Config) File(file string) {
	file = strings.TrimSpace(file)
	if file == "" {
		panic("file can't be blank")
	}
	if strings.Contains(file, "?") {
		panic("file can't contain ?")
	}
	c.file = file
}

// PurgeInterval deletes expired rows in the background at the given
// interval. Zero disables the purger; expired rows are still never returned.
func (c *Config) PurgeInterval(interval time.Duration) {
	if interval < 0 {
		panic("purge interval can't be < 0")
	}
	c.purgeInterval = interval
}

// Store applies store-wide options such as the codec.
func (c *Config) Store(opts ...stores.Option) {
	c.options = append(c.options, opts...)
}
