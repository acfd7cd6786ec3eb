package config

// Settings is the configuration surface of the stream-consumer engine
// (spec §6): broker and document-store connection info, the streams and
// consumer group it operates on, and the tunables governing batching,
// blocking reads, dedup TTL, and retry ceiling.
type Settings struct {
	RedisURL    string `env:"REDIS_URL" env-default:"redis://localhost:6379" validate:"required"`
	DatabaseURI string `env:"DATABASE_URI" env-default:"mongodb://localhost:27017" validate:"required"`
	DBName      string `env:"DB_NAME" env-default:"servicing" validate:"required"`

	InboxStream    string `env:"INBOX_STREAM" env-default:"events.inbox" validate:"required"`
	InternalStream string `env:"INTERNAL_STREAM" env-default:"events.internal" validate:"required"`
	DLQStream      string `env:"DLQ_STREAM" env-default:"events.dlq" validate:"required"`

	ConsumerGroup string `env:"CONSUMER_GROUP" env-default:"servicing-group" validate:"required"`

	BatchSize     int64 `env:"BATCH_SIZE" env-default:"10" validate:"gt=0"`
	BlockTimeoutMS int64 `env:"BLOCK_TIMEOUT_MS" env-default:"5000" validate:"gt=0"`

	DedupTTLSeconds int64 `env:"DEDUP_TTL_SECONDS" env-default:"86400" validate:"gt=0"`
	MaxRetries      int64 `env:"MAX_RETRIES" env-default:"3" validate:"gt=0"`

	LogLevel  string `env:"LOG_LEVEL" env-default:"INFO"`
	LogFormat string `env:"LOG_FORMAT" env-default:"JSON"`
}
