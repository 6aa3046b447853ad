package ws

// Topics published by the node.
const (
	TopicConfirmation        = "confirmation"
	TopicVote                = "vote"
	TopicStoppedElection     = "stopped_election"
	TopicActiveDifficulty    = "active_difficulty"
	TopicWork                = "work"
	TopicTelemetry           = "telemetry"
	TopicNewUnconfirmedBlock = "new_unconfirmed_block"
	TopicBootstrap           = "bootstrap"
)

// TopicInfo describes a known topic and the type its messages decode into.
type TopicInfo struct {
	Name        string
	Model       string
	Description string
}

var knownTopics = []TopicInfo{
	{TopicConfirmation, "Confirmation", "confirmed blocks, filterable by account"},
	{TopicVote, "Vote", "votes observed from representatives"},
	{TopicStoppedElection, "StoppedElection", "elections stopped without confirmation"},
	{TopicActiveDifficulty, "ActiveDifficulty", "changes of the network work difficulty"},
	{TopicWork, "Work", "work generation results"},
	{TopicTelemetry, "Telemetry", "telemetry received from peers"},
	{TopicNewUnconfirmedBlock, "Block", "blocks as they arrive, before confirmation"},
	{TopicBootstrap, "Bootstrap", "bootstrap start and exit events"},
}

// KnownTopics returns the topics the node publishes.
func KnownTopics() []TopicInfo {
	return append([]TopicInfo(nil), knownTopics...)
}

// IsKnownTopic reports whether topic is one of KnownTopics. Unknown topics can still be subscribed.
func IsKnownTopic(topic string) bool {
	for _, t := range knownTopics {
		if t.Name == topic {
			return true
		}
	}
	return false
}
