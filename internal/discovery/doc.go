// Package discovery finds coop radio bridges on the local network over mDNS.
//
// A machine with the HC-12 radio attached runs "coopctl bridge", which
// advertises a "_coopradio._tcp" service named "coopradio-<id>" with TXT
// records "id=<id>" and "path=/radio". Controllers elsewhere on the LAN use
// a Scanner to locate it and dial Bridge.WebSocketURL().
//
// # Usage Example
//
//	scanner := discovery.NewScanner()
//	bridge, err := scanner.Find(ctx, "7")
//	if err != nil {
//	    return err
//	}
//	radio, err := transport.DialWebSocket(ctx, bridge.WebSocketURL(), logger)
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Bridges must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
