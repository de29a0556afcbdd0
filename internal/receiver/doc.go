// Package receiver knows which Lyngdorf receivers are supported and how to
// talk to them.
//
// It provides:
//   - a static model registry (LookupModel, SupportedManufacturers)
//   - Prober, which asks a host what model it is over the control port
//   - Resolver, which prefers the registry and probes only on a miss
//   - Client, a persistent control connection with state notifications
//
// The control protocol is line based. Commands and notifications look like
// "!NAME(args)" or "!NAME?" and end with a carriage return:
//
//	-> !DEVICE?
//	<- !DEVICE(MP-60)
//	<- !VOL(-305)
package receiver
