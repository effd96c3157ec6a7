package tunnel

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const healthPath = "/healthz"

type Configuration struct {
	Port               int           `yaml:"port" validate:"min=1,max=65535"`
	TunnelPath         string        `yaml:"tunnel-path" validate:"required,startswith=/"`
	RemoteHosts        []string      `yaml:"remote-hosts" validate:"required,min=1,dive,required"`
	ProjectIDs         ProjectIDList `yaml:"project-ids" validate:"required,min=1,dive,required"`
	TrustXForwardedFor bool          `yaml:"trust-x-forwarded-for"`
	// ForwardTimeout in seconds, 0 keeps the http client default.
	ForwardTimeout       int    `yaml:"forward-timeout" validate:"min=0"`
	LogLevel             string `yaml:"log-level"`
	LoggingFormat        string `yaml:"log-format"`
	LogFile              string `yaml:"log-file"`
	LogFileMaxSize       int    `yaml:"log-file-max-size" validate:"min=0"`
	LogFileMaxBackups    int    `yaml:"log-file-max-backups" validate:"min=0"`
	MetricsPath          string `yaml:"metrics-path" validate:"omitempty,startswith=/,ne=/healthz"`
	LimiterTokenRate     int    `yaml:"limiter-token-rate" validate:"min=0"`
	LimiterBurstSize     int    `yaml:"limiter-burst-size" validate:"min=0"`
	LimiterCleanInterval int    `yaml:"limiter-clean-interval" validate:"min=0"`
}

// ProjectIDList holds allowed project ids as written in the configuration:
// plain ids or ranges like "100-200".
type ProjectIDList []string

func (l *ProjectIDList) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var values []interface{}
	if err := unmarshal(&values); err != nil {
		return err
	}

	list := make(ProjectIDList, 0, len(values))
	for _, value := range values {
		switch v := value.(type) {
		case string:
			list = append(list, v)
		case int, int64, uint64:
			list = append(list, fmt.Sprint(v))
		default:
			return errors.Errorf("invalid project id %v", value)
		}
	}

	*l = list
	return nil
}

// DefaultConfiguration holds the values used for keys missing in the
// configuration file.
func DefaultConfiguration() Configuration {
	return Configuration{
		Port:                 8080,
		TunnelPath:           "/tunnel",
		LogLevel:             "INFO",
		LoggingFormat:        "%{time:2006-01-02 15:04:05.000-0700} %{level:.4s} [%{module}:%{shortfile}] %{message}",
		LogFileMaxSize:       10,
		LogFileMaxBackups:    3,
		MetricsPath:          "/metrics",
		LimiterCleanInterval: _DefaultCleanInterval,
	}
}

func ReadConfiguration(confPath string) (Configuration, error) {
	configuration := DefaultConfiguration()

	if _, err := os.Stat(confPath); os.IsNotExist(err) {
		return configuration, errors.Errorf("could not find configuration at %s", confPath)
	}

	data, err := os.ReadFile(confPath)
	if err != nil {
		return configuration, errors.Wrapf(err, "failed to read configuration %s", confPath)
	}

	err = yaml.Unmarshal(data, &configuration)
	if err != nil {
		return configuration, errors.Wrapf(err, "failed to unmarshal configuration %s", confPath)
	}

	if err := configuration.Validate(); err != nil {
		return configuration, errors.Wrapf(err, "invalid configuration %s", confPath)
	}

	return configuration, nil
}

// Validate checks the configuration before the server is built from it.
func (c Configuration) Validate() error {
	if err := checkStruct(newValidator(), c); err != nil {
		return err
	}

	if _, err := c.projectIDRanges(); err != nil {
		return err
	}

	return nil
}

// AccessPolicy builds the immutable policy shared by all tunnel requests.
func (c Configuration) AccessPolicy() (*AccessPolicy, error) {
	ranges, err := c.projectIDRanges()
	if err != nil {
		return nil, err
	}
	return NewAccessPolicy(c.RemoteHosts, ranges), nil
}

func (c Configuration) projectIDRanges() ([]ProjectIDRange, error) {
	ranges := make([]ProjectIDRange, 0, len(c.ProjectIDs))
	for _, id := range c.ProjectIDs {
		r, err := ParseProjectIDRange(id)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse project-ids")
		}
		ranges = append(ranges, r)
	}
	return ranges, nil
}

func newValidator() *validator.Validate {
	v := validator.New()

	// report yaml keys instead of go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return v
}

func checkStruct(v *validator.Validate, s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		first := validationErrors[0]
		return errors.Errorf("invalid value for %s (condition: %s)", first.Field(), first.Tag())
	}

	return errors.Wrap(err, "failed to validate configuration")
}
