package monitor

import "time"

type Status struct {
	Store        bool      `json:"store"`
	StoreDriver  string    `json:"store_driver"`
	Redis        bool      `json:"redis"`
	RedisEnabled bool      `json:"redis_enabled"`
	LastCheck    time.Time `json:"last_check"`
}
