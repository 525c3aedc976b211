package config

// Config is an assets document delivered by a provider. A nil Data means the
// source went away.
type Config struct {
	Source string
	Data   []byte
}

func (c Config) Removed() bool { return c.Data == nil }
