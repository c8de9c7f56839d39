package world

import "time"

type Config struct {
	Capacity     int
	TickInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.Capacity <= 0 {
		c.Capacity = 2000
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 600 * time.Millisecond
	}
}
