// Package consul registers the board lease manager with a Consul agent so
// workflow executors can discover it by service name.
package consul

import (
	"fmt"
	"net"
	"os"
	"time"

	consul "github.com/hashicorp/consul/api"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
)

const (
	// healthCheckInterval is how often Consul probes the /api/health endpoint.
	healthCheckInterval = 15 * time.Second

	// deregisterAfter removes a service whose check has been critical for this
	// long, so crashed instances do not linger in the catalog.
	deregisterAfter = 2 * time.Minute
)

// Client wraps the Consul API client with service registration helpers.
type Client struct {
	*consul.Client

	log logger.Logger
}

// NewClient connects to the Consul agent at addr.
func NewClient(addr string) (*Client, error) {
	cfg := consul.DefaultConfig()
	cfg.Address = addr

	c, err := consul.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	cli := &Client{Client: c}
	config.InitLogger(&cli.log, cli)

	return cli, nil
}

// localIP returns the address to advertise. If BOARDFARM_ADVERTISE_NETWORK
// holds a CIDR, the first local IPv4 address inside it wins; otherwise the
// first non-loopback IPv4 address is used.
func (c *Client) localIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}

	var ips []net.IP
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			ips = append(ips, ipnet.IP)
		}
	}

	if len(ips) == 0 {
		return "", fmt.Errorf("no non-loopback IPv4 address found to advertise")
	}

	advertised := ips[0].String()

	if cidr := os.Getenv("BOARDFARM_ADVERTISE_NETWORK"); cidr != "" {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			c.log.Error("Invalid CIDR in BOARDFARM_ADVERTISE_NETWORK: \"%s\"", cidr)
		} else {
			for _, ip := range ips {
				if ipNet.Contains(ip) {
					advertised = ip.String()
					c.log.Info("Advertising on the dedicated network address %s.", advertised)
					break
				}
			}
		}
	}

	return advertised, nil
}

// Register announces the service to Consul with an HTTP health check against
// the manager's /api/health endpoint. Pass an empty ip to auto-detect.
func (c *Client) Register(name string, id string, ip string, port int) error {
	if ip == "" {
		var err error
		if ip, err = c.localIP(); err != nil {
			return err
		}
	}

	registration := &consul.AgentServiceRegistration{
		ID:      id,
		Name:    name,
		Port:    port,
		Address: ip,
		Check: &consul.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/api/health", ip, port),
			Interval:                       healthCheckInterval.String(),
			DeregisterCriticalServiceAfter: deregisterAfter.String(),
		},
	}

	c.log.Info("Registering service [ name: %s, id: %s, address: %s:%d ].", name, id, ip, port)

	return c.Agent().ServiceRegister(registration)
}

// Deregister removes the service from the catalog.
func (c *Client) Deregister(id string) error {
	return c.Agent().ServiceDeregister(id)
}
