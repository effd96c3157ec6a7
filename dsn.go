package tunnel

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

var defaultPorts = map[string]int{
	"http":  80,
	"https": 443,
}

// DSN is the parsed destination descriptor of an envelope:
//
//	<scheme>://<public key>[:<secret key>]@<host>[:<port>][/<path>]/<project id>
type DSN struct {
	Scheme    string
	PublicKey string
	SecretKey string
	Host      string
	// Port is 0 if the dsn does not name one.
	Port int
	// Path is the prefix before the project id, without trailing slash.
	Path      string
	ProjectID uint64
}

// ParseDSN parses raw as a whole. It never returns a partially filled DSN.
func ParseDSN(raw string) (*DSN, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDSN, err)
	}

	if _, ok := defaultPorts[u.Scheme]; !ok {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidDSN, u.Scheme)
	}

	if u.User == nil || u.User.Username() == "" {
		return nil, fmt.Errorf("%w: missing public key", ErrInvalidDSN)
	}
	secretKey, _ := u.User.Password()

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidDSN)
	}

	port := 0
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("%w: invalid port %q", ErrInvalidDSN, p)
		}
	}

	path := strings.TrimSuffix(u.Path, "/")
	separator := strings.LastIndex(path, "/")
	if separator < 0 {
		return nil, fmt.Errorf("%w: missing project id", ErrInvalidDSN)
	}
	projectID, err := strconv.ParseUint(path[separator+1:], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid project id %q", ErrInvalidDSN, path[separator+1:])
	}

	return &DSN{
		Scheme:    u.Scheme,
		PublicKey: u.User.Username(),
		SecretKey: secretKey,
		Host:      host,
		Port:      port,
		Path:      path[:separator],
		ProjectID: projectID,
	}, nil
}

// EnvelopeURL returns the envelope endpoint of the sentry instance the dsn
// points to. A port equal to the scheme default is left out.
func (d *DSN) EnvelopeURL() string {
	return fmt.Sprintf("%s://%s%s/api/%d/envelope/", d.Scheme, d.hostPort(), d.Path, d.ProjectID)
}

func (d *DSN) String() string {
	userInfo := d.PublicKey
	if d.SecretKey != "" {
		userInfo += ":" + d.SecretKey
	}
	return fmt.Sprintf("%s://%s@%s%s/%d", d.Scheme, userInfo, d.hostPort(), d.Path, d.ProjectID)
}

func (d *DSN) hostPort() string {
	if d.Port != 0 && d.Port != defaultPorts[d.Scheme] {
		return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
	}
	if strings.Contains(d.Host, ":") {
		return "[" + d.Host + "]"
	}
	return d.Host
}
