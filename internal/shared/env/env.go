package env

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

// parsed returns def when key is unset or fails to parse.
func parsed[T any](key string, def T, parse func(string) (T, error)) T {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	out, err := parse(v)
	if err != nil {
		return def
	}
	return out
}

func String(key, def string) string {
	if v, ok := lookup(key); ok {
		return v
	}
	return def
}

func StringsCSV(key string, def []string) []string {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func Int(key string, def int) int {
	return parsed(key, def, strconv.Atoi)
}

func Bool(key string, def bool) bool {
	return parsed(key, def, strconv.ParseBool)
}

func Duration(key string, def time.Duration) time.Duration {
	return parsed(key, def, time.ParseDuration)
}
