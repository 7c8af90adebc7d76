// Package discovery advertises and browses CoAP endpoints over DNS-SD.
//
// Multicast CoAP discovery only reaches nodes that joined the all-CoAP-nodes
// groups. DNS-SD covers the other case: a node listening on ephemeral unicast
// ports announces them as "_coap._udp" and "_coaps._udp" services so tools on
// the same link can find them.
//
// # Usage Example
//
//	eps, err := tr.LocalEndpoints()
//	if err != nil {
//	    return err
//	}
//	adv, err := discovery.Advertise(ctx, "lamp", eps)
//	if err != nil {
//	    return err
//	}
//	defer adv.Shutdown()
//
//	peers, err := discovery.Browse(ctx, 3*time.Second)
//	for _, p := range peers {
//	    for _, ep := range p.Endpoints() {
//	        fmt.Println(ep)
//	    }
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Peers must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
