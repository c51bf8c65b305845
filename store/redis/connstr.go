package redis

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/rescache/store"
)

const (
	defaultPort           = "6379"
	defaultConfigChannel  = "__rescache:config"
	defaultConnectTimeout = 5 * time.Second
	defaultSyncTimeout    = 5 * time.Second
	defaultConnectRetry   = 3
)

// Options is the parsed form of a connection string.
type Options struct {
	// Endpoints[0] is the primary; the rest are read replicas
	// (or seed nodes when Cluster is set).
	Endpoints []string
	Username  string
	Password  string
	TLS       bool
	DB        int

	// AbortOnConnectFail fails Open when the primary is unreachable.
	// When false, Open returns a disconnected Conn that recovers on its own.
	AbortOnConnectFail bool
	ConnectTimeout     time.Duration
	SyncTimeout        time.Duration
	ConnectRetry       int

	ClientName       string
	Cluster          bool
	ReadFromReplicas bool
	// ConfigChannel is subscribed for configuration broadcasts. Empty disables.
	ConfigChannel string
}

func defaultOptions() Options {
	return Options{
		AbortOnConnectFail: true,
		ConnectTimeout:     defaultConnectTimeout,
		SyncTimeout:        defaultSyncTimeout,
		ConnectRetry:       defaultConnectRetry,
		ConfigChannel:      defaultConfigChannel,
	}
}

// ParseConnectionString accepts either a redis:// / rediss:// URL or the
// comma-separated form:
//
//	host:port[,host:port...][,option=value...]
//
// Recognized options (case-insensitive): password, user, ssl, abortConnect,
// connectTimeout, syncTimeout (milliseconds), defaultDatabase, name, cluster,
// readFromReplicas, configChannel, connectRetry.
func ParseConnectionString(s string) (Options, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Options{}, fmt.Errorf("%w: empty", store.ErrInvalidConnectionString)
	}
	if strings.HasPrefix(s, "redis://") || strings.HasPrefix(s, "rediss://") {
		return parseURL(s)
	}

	opts := defaultOptions()
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		k, v, isOpt := strings.Cut(tok, "=")
		if !isOpt {
			opts.Endpoints = append(opts.Endpoints, withDefaultPort(tok))
			continue
		}
		if err := opts.set(strings.TrimSpace(k), strings.TrimSpace(v)); err != nil {
			return Options{}, err
		}
	}
	if len(opts.Endpoints) == 0 {
		return Options{}, fmt.Errorf("%w: no endpoints", store.ErrInvalidConnectionString)
	}
	return opts, nil
}

func (o *Options) set(key, val string) error {
	var err error
	switch strings.ToLower(key) {
	case "password":
		o.Password = val
	case "user":
		o.Username = val
	case "ssl":
		o.TLS, err = strconv.ParseBool(val)
	case "abortconnect":
		o.AbortOnConnectFail, err = strconv.ParseBool(val)
	case "connecttimeout":
		o.ConnectTimeout, err = parseMillis(val)
	case "synctimeout":
		o.SyncTimeout, err = parseMillis(val)
	case "defaultdatabase":
		o.DB, err = parseNonNegative(val)
	case "connectretry":
		o.ConnectRetry, err = parseNonNegative(val)
	case "name":
		o.ClientName = val
	case "cluster":
		o.Cluster, err = strconv.ParseBool(val)
	case "readfromreplicas":
		o.ReadFromReplicas, err = strconv.ParseBool(val)
	case "configchannel":
		o.ConfigChannel = val
	default:
		return fmt.Errorf("%w: unknown option %q", store.ErrInvalidConnectionString, key)
	}
	if err != nil {
		return fmt.Errorf("%w: option %s=%q: %v", store.ErrInvalidConnectionString, key, val, err)
	}
	return nil
}

func parseURL(s string) (Options, error) {
	ro, err := goredis.ParseURL(s)
	if err != nil {
		return Options{}, fmt.Errorf("%w: %v", store.ErrInvalidConnectionString, err)
	}
	opts := defaultOptions()
	opts.Endpoints = []string{ro.Addr}
	opts.Username = ro.Username
	opts.Password = ro.Password
	opts.DB = ro.DB
	opts.TLS = ro.TLSConfig != nil
	opts.ClientName = ro.ClientName
	if ro.DialTimeout > 0 {
		opts.ConnectTimeout = ro.DialTimeout
	}
	if ro.ReadTimeout > 0 {
		opts.SyncTimeout = ro.ReadTimeout
	}
	return opts, nil
}

func parseMillis(v string) (time.Duration, error) {
	n, err := parseNonNegative(v)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Millisecond, nil
}

func parseNonNegative(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("must be >= 0")
	}
	return n, nil
}

func withDefaultPort(ep string) string {
	if _, _, err := net.SplitHostPort(ep); err == nil {
		return ep
	}
	return net.JoinHostPort(strings.Trim(ep, "[]"), defaultPort)
}
