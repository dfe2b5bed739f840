package turn

// ConfigOptions configures the relay. PublicIP and Port are also what clients are told to
// dial, see ICEServer.
type ConfigOptions struct {
	PublicIP string
	// Port is the UDP listening port. Zero picks a free port, which is only useful in tests
	// since ICEServer then advertises port 0.
	Port int
	// Username and Password are the single long-term credential accepted by the relay.
	Username string
	Password string
	Realm    string
	// RelayMinPort and RelayMaxPort bound the ports allocated for relayed traffic.
	RelayMinPort uint
	RelayMaxPort uint
}
