package config

import "time"

// Client definition chat_client YAML structure
type Client struct {
	APIBaseURL     string        `mapstructure:"api_base_url"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	OptimisticEcho bool          `mapstructure:"optimistic_echo"`
	WatchBuffer    int           `mapstructure:"watch_buffer"`

	History  HistoryConfig  `mapstructure:"history"`
	LiveFeed LiveFeedConfig `mapstructure:"live_feed"`
	MongoSQL DatabaseConfig `mapstructure:"mongo"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// HistoryConfig definition history page source
type HistoryConfig struct {
	Source   string `mapstructure:"source"` // rest | mongo
	PageSize int    `mapstructure:"page_size"`
	SortKey  string `mapstructure:"sort_key"`
	SortDir  string `mapstructure:"sort_dir"`
}

// LiveFeedConfig definition live feed transport
type LiveFeedConfig struct {
	Transport          string        `mapstructure:"transport"` // stomp | redis
	URL                string        `mapstructure:"url"`
	Host               string        `mapstructure:"host"`
	SubscribePrefix    string        `mapstructure:"subscribe_prefix"`
	PublishDestination string        `mapstructure:"publish_destination"`
	HeartBeat          time.Duration `mapstructure:"heart_beat"`
	RetryCount         int           `mapstructure:"retry_count"`
	RetryInterval      time.Duration `mapstructure:"retry_interval"`
	ReconnectAttempts  int           `mapstructure:"reconnect_attempts"`
	ReconnectInterval  time.Duration `mapstructure:"reconnect_interval"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	Addr          string   `mapstructure:"addr"`
	MasterName    string   `mapstructure:"master_name"`
	SentinelAddrs []string `mapstructure:"sentinel_addrs"`
	RedisDB       int      `mapstructure:"redis_db"`
	ChannelPrefix string   `mapstructure:"channel_prefix"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	Database      string        `mapstructure:"database"`
	Collection    string        `mapstructure:"collection"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	RetryCount    int           `mapstructure:"retry_count"`
}

// defaults 對應原本手機端寫死的值
var defaults = map[string]interface{}{
	"api_base_url":                  "http://localhost:8080/api",
	"http_timeout":                  10 * time.Second,
	"watch_buffer":                  32,
	"history.source":                "rest",
	"history.page_size":             15,
	"history.sort_key":              "sentAt",
	"history.sort_dir":              "asc",
	"live_feed.transport":           "stomp",
	"live_feed.url":                 "ws://localhost:8080/ws/websocket",
	"live_feed.subscribe_prefix":    "/user/chat/",
	"live_feed.publish_destination": "/app/chat",
	"live_feed.heart_beat":          10 * time.Second,
	"live_feed.retry_count":         3,
	"live_feed.retry_interval":      time.Second,
	"live_feed.reconnect_interval":  5 * time.Second,
	"mongo.collection":              "chat_messages",
	"redis.addr":                    "localhost:6379",
	"redis.channel_prefix":          "chat:room:",
}
