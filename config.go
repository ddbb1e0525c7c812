package tessera

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/tesseradb/tessera/logger"
	"github.com/tesseradb/tessera/scan"
	"github.com/tesseradb/tessera/schema"
	"github.com/tesseradb/tessera/uid"
)

// Config aggregates the per-subsystem configurations into the single file
// operators deploy.
type Config struct {
	Log    logger.Config `toml:"log"`
	UID    uid.Config    `toml:"uid"`
	Schema schema.Config `toml:"schema"`
	Scan   scan.Config   `toml:"scan"`
}

// NewConfig returns a Config in which every section carries its defaults.
func NewConfig() Config {
	return Config{
		Log:    logger.NewConfig(),
		UID:    uid.NewConfig(),
		Schema: schema.NewConfig(),
		Scan:   scan.NewConfig(),
	}
}

// FromTomlFile loads a TOML file over the receiver. Unset keys keep their
// current values, so loading over NewConfig yields defaults plus overrides.
func (c *Config) FromTomlFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "tessera: reading config")
	}
	return c.FromToml(string(data))
}

// FromToml parses TOML input over the receiver.
func (c *Config) FromToml(input string) error {
	_, err := toml.Decode(input, c)
	return errors.Wrap(err, "tessera: parsing config")
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.UID.Validate(); err != nil {
		return err
	}
	if err := c.Schema.Validate(); err != nil {
		return err
	}
	return c.Scan.Validate()
}
