// Package discovery registers the service with Consul.
package discovery

import (
	"fmt"

	"github.com/hashicorp/consul/api"
	"github.com/rs/zerolog/log"
)

// Options describes the instance being registered
type Options struct {
	ConsulAddress  string
	ServiceName    string
	ServiceAddress string
	ServicePort    int
	Tags           []string
}

// ServiceRegistry registers and deregisters this instance
type ServiceRegistry struct {
	client *api.Client
	opts   Options
}

// NewServiceRegistry creates a Consul client
func NewServiceRegistry(opts Options) (*ServiceRegistry, error) {
	consulConfig := api.DefaultConfig()
	consulConfig.Address = opts.ConsulAddress

	client, err := api.NewClient(consulConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Consul client: %w", err)
	}

	return &ServiceRegistry{client: client, opts: opts}, nil
}

func (sr *ServiceRegistry) serviceID() string {
	return fmt.Sprintf("%s-%s-%d", sr.opts.ServiceName, sr.opts.ServiceAddress, sr.opts.ServicePort)
}

// Register registers the HTTP endpoint with a /health check
func (sr *ServiceRegistry) Register() error {
	registration := &api.AgentServiceRegistration{
		ID:      sr.serviceID(),
		Name:    sr.opts.ServiceName,
		Port:    sr.opts.ServicePort,
		Address: sr.opts.ServiceAddress,
		Check: &api.AgentServiceCheck{
			HTTP:     fmt.Sprintf("http://%s:%d/health", sr.opts.ServiceAddress, sr.opts.ServicePort),
			Interval: "10s",
			Timeout:  "5s",
		},
		Tags: sr.opts.Tags,
		Meta: map[string]string{
			"protocol": "http",
		},
	}

	if err := sr.client.Agent().ServiceRegister(registration); err != nil {
		return fmt.Errorf("failed to register service with Consul: %w", err)
	}

	log.Info().
		Str("service", sr.opts.ServiceName).
		Str("address", sr.opts.ServiceAddress).
		Int("port", sr.opts.ServicePort).
		Msg("Registered service with Consul")
	return nil
}

// Deregister removes this instance from Consul
func (sr *ServiceRegistry) Deregister() error {
	if err := sr.client.Agent().ServiceDeregister(sr.serviceID()); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}
	log.Info().Str("service", sr.opts.ServiceName).Msg("Deregistered service from Consul")
	return nil
}
