package config

import (
	"fmt"
	"os"
)

// Template is a commented configuration carrying the default values.
func Template() string {
	return template
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const template = `# name = "alice"            # display name, defaults to the login name
# address = "192.168.1.20"  # local IPv4, defaults to the outbound route
listen_address = "0.0.0.0"
# broadcast_address = "192.168.1.255"
discovery_port = 4242
transfer_port = 4244
broadcast_interval = "1s"
datagram_buffer = 512
# mailbox_dir = "/var/tmp"
save_dir = "."
# metrics_addr = "127.0.0.1:9464"
advertise_mdns = false

[log]
level = "info"
`
