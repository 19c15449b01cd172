package config

// GeoIPConfig points the importer at a MaxMind City database. An empty path
// disables enrichment.
type GeoIPConfig struct {
	CityDB  string `mapstructure:"CITY_DB" json:"city_db" validate:"omitempty"`
	Workers int    `mapstructure:"WORKERS" json:"workers" validate:"required,min=1,max=64"`
}

// ExitIndexConfig sizes the exit-address bloom filter and schedules its
// rebuild.
type ExitIndexConfig struct {
	Capacity          uint    `mapstructure:"CAPACITY"            json:"capacity"            validate:"required,min=1024"`
	FalsePositiveRate float64 `mapstructure:"FALSE_POSITIVE_RATE" json:"false_positive_rate" validate:"gt=0,lt=1"`
	Refresh           string  `mapstructure:"REFRESH"             json:"refresh"             validate:"required,cron_spec"`
}
