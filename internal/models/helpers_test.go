package models

import (
	"time"
)

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}
