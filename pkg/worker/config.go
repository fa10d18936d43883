package worker

// SubscriberConfig holds the configuration for a Watermill subscriber. It
// reads the watermill section of the server configuration file.
type SubscriberConfig struct {
	Driver  string   `yaml:"driver" toml:"driver"`
	Drivers []string `yaml:"drivers" toml:"drivers"`
	Topic   string   `yaml:"topic" toml:"topic"`

	GoChannel  GoChannelConfig `yaml:"gochannel" toml:"gochannel"`
	Kafka      KafkaConfig     `yaml:"kafka" toml:"kafka"`
	NATS       NATSConfig      `yaml:"nats" toml:"nats"`
	AMQP       AMQPConfig      `yaml:"amqp" toml:"amqp"`
	SQL        SQLConfig       `yaml:"sql" toml:"sql"`
	RiverQueue RiverConfig     `yaml:"riverqueue" toml:"riverqueue"`
}

// GoChannelConfig holds configuration for the GoChannel pub/sub.
type GoChannelConfig struct {
	OutputChannelBuffer            int64 `yaml:"output_buffer" toml:"output_buffer"`
	Persistent                     bool  `yaml:"persistent" toml:"persistent"`
	BlockPublishUntilSubscriberAck bool  `yaml:"block_publish_until_subscriber_ack" toml:"block_publish_until_subscriber_ack"`
}

// KafkaConfig holds configuration for the Kafka pub/sub.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers" toml:"brokers"`
	ConsumerGroup string   `yaml:"consumer_group" toml:"consumer_group"`
}

// NATSConfig holds configuration for the NATS pub/sub.
type NATSConfig struct {
	ClusterID      string `yaml:"cluster_id" toml:"cluster_id"`
	ClientID       string `yaml:"client_id" toml:"client_id"`
	ClientIDSuffix string `yaml:"client_id_suffix" toml:"client_id_suffix"`
	URL            string `yaml:"url" toml:"url"`
	Durable        string `yaml:"durable" toml:"durable"`
}

// AMQPConfig holds configuration for the AMQP pub/sub.
type AMQPConfig struct {
	URL  string `yaml:"url" toml:"url"`
	Mode string `yaml:"mode" toml:"mode"`
}

// SQLConfig holds configuration for the SQL pub/sub.
type SQLConfig struct {
	Driver               string `yaml:"driver" toml:"driver"`
	DSN                  string `yaml:"dsn" toml:"dsn"`
	Dialect              string `yaml:"dialect" toml:"dialect"`
	ConsumerGroup        string `yaml:"consumer_group" toml:"consumer_group"`
	InitializeSchema     bool   `yaml:"initialize_schema" toml:"initialize_schema"`
	AutoInitializeSchema bool   `yaml:"auto_initialize_schema" toml:"auto_initialize_schema"`
}

// RiverConfig holds configuration for consuming River jobs.
type RiverConfig struct {
	DSN        string `yaml:"dsn" toml:"dsn"`
	Queue      string `yaml:"queue" toml:"queue"`
	MaxWorkers int    `yaml:"max_workers" toml:"max_workers"`
}
