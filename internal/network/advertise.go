package network

import (
	"github.com/grandcat/zeroconf"
)

// advertiser publishes the listener over mDNS for the life of a listen
// session. A nil advertiser does nothing.
type advertiser struct {
	server *zeroconf.Server
}

func (d *Driver) advertise() *advertiser {
	if !d.cfg.AdvertiseMDNS {
		return nil
	}
	instance := d.ident.Name
	if instance == "" {
		instance = "squirrel"
	}
	txt := []string{"name=" + d.ident.Name, "ip=" + d.ident.Address}
	server, err := zeroconf.Register(instance, MDNSService, "local.", d.cfg.DiscoveryPort, txt, nil)
	if err != nil {
		d.log.Warn().Err(err).Msg("network.Driver.advertise mdns unavailable")
		return nil
	}
	d.log.Debug().Str("instance", instance).Str("service", MDNSService).Msg("network.Driver.advertise registered")
	return &advertiser{server: server}
}

func (a *advertiser) Shutdown() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
}
