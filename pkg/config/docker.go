package config

import (
	"net"
	"net/url"
	"os"
	"sync"
)

// dockerEnvFile exists in every Docker container.
var dockerEnvFile = "/.dockerenv"

const dockerHostGateway = "host.docker.internal"

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker reports whether the process runs inside a Docker
// container. The result is cached after the first call.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat(dockerEnvFile)
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker maps loopback hosts to host.docker.internal when
// running in Docker so databases on the host stay reachable.
func ResolveHostForDocker(host string) string {
	return resolveHost(host, IsRunningInDocker())
}

// ResolveDSNForDocker applies ResolveHostForDocker to the host of a URL-style
// DSN (postgres://, sqlserver://). Keyword/value DSNs are returned unchanged.
func ResolveDSNForDocker(dsn string) string {
	return resolveDSN(dsn, IsRunningInDocker())
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func resolveHost(host string, inDocker bool) string {
	if inDocker && isLoopback(host) {
		return dockerHostGateway
	}
	return host
}

func resolveDSN(dsn string, inDocker bool) string {
	if !inDocker {
		return dsn
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" || u.Host == "" || !isLoopback(u.Hostname()) {
		return dsn
	}
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(dockerHostGateway, port)
	} else {
		u.Host = dockerHostGateway
	}
	return u.String()
}
