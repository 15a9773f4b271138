package conf

import "github.com/testflow/testflow/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.Newf("server.port must be positive, got %d", c.Server.Port)
	}

	if c.Queue.MaxInFlight < 0 {
		return errors.Newf("queue.max_in_flight must be >= 0, got %d", c.Queue.MaxInFlight)
	}
	if c.Queue.RedeliverAfterSeconds < 0 {
		return errors.Newf("queue.redeliver_after_seconds must be >= 0, got %d", c.Queue.RedeliverAfterSeconds)
	}

	if c.History.DefaultLimit <= 0 {
		return errors.Newf("history.default_limit must be > 0, got %d", c.History.DefaultLimit)
	}
	if c.History.MaxLimit < c.History.DefaultLimit {
		return errors.Newf("history.max_limit (%d) must be >= history.default_limit (%d)",
			c.History.MaxLimit, c.History.DefaultLimit)
	}

	return nil
}
