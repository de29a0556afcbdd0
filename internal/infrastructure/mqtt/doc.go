// Package mqtt connects Lyngdorf Core to an MQTT broker.
//
// The broker is the event bus for home-automation consumers:
//
//	lyngdorf/system/status            online/offline, LWT (retained)
//	lyngdorf/discovery/{udn}          supported receiver seen (retained)
//	lyngdorf/flow/{flow_id}           configuration flow results
//	lyngdorf/entry/{entry_id}/state   receiver state snapshot (retained)
//	lyngdorf/entry/{entry_id}/command raw receiver commands (subscribed)
//
// The client reconnects automatically with backoff between
// mqtt.reconnect.initial_delay and max_delay and restores subscriptions.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(mqtt.Topics{}.Flow(id), result, false)
package mqtt
