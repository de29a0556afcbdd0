package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every topic this service publishes or
// subscribes to.
const TopicPrefix = "lyngdorf"

// Topics builds the lyngdorf/... topic names.
//
//	mqtt.Topics{}.EntryState(entryID) // lyngdorf/entry/<id>/state
type Topics struct{}

// SystemStatus carries online/offline status and the LWT. Retained.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// Discovery announces a supported, unconfigured receiver. Retained; cleared
// once the receiver is configured.
//
// Example: lyngdorf/discovery/uuid:5f9ec1b3-ed59-79bb-4530-745e1a43b1a9
func (Topics) Discovery(udn string) string {
	return fmt.Sprintf("%s/discovery/%s", TopicPrefix, udn)
}

// Flow carries every result of one configuration flow.
func (Topics) Flow(flowID string) string {
	return fmt.Sprintf("%s/flow/%s", TopicPrefix, flowID)
}

// EntryState carries the state snapshot of a set-up receiver. Retained.
func (Topics) EntryState(entryID string) string {
	return fmt.Sprintf("%s/entry/%s/state", TopicPrefix, entryID)
}

// EntryCommand receives JSON control commands for a set-up receiver.
func (Topics) EntryCommand(entryID string) string {
	return fmt.Sprintf("%s/entry/%s/command", TopicPrefix, entryID)
}

// AllEntryCommands matches EntryCommand for every entry.
func (Topics) AllEntryCommands() string {
	return TopicPrefix + "/entry/+/command"
}

// EntryIDFromCommandTopic extracts the entry ID from an EntryCommand topic.
func (Topics) EntryIDFromCommandTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefix+"/entry/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/command")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// AllTopics matches everything under TopicPrefix.
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
