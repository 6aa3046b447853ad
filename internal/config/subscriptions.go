package config

import (
	"fmt"
	"os"
	"reflect"

	"gopkg.in/yaml.v3"
)

// Subscription is one entry of the subscriptions file.
//
//	subscriptions:
//	  - topic: confirmation
//	    ack: true
//	    options:
//	      accounts: [nano_1abc...]
type Subscription struct {
	Topic string `yaml:"topic" validate:"required"`
	Ack   bool   `yaml:"ack"`
	// Options is the node's filter object, sent nested under "options".
	Options map[string]any `yaml:"options"`
}

// FrameOptions returns the control frame options for the subscription, nil when unfiltered.
func (s Subscription) FrameOptions() map[string]any {
	if len(s.Options) == 0 {
		return nil
	}
	return map[string]any{"options": s.Options}
}

type subscriptionsFile struct {
	Subscriptions []Subscription `yaml:"subscriptions" validate:"dive"`
}

// LoadSubscriptions reads and validates a subscriptions file. Topics must be unique.
func LoadSubscriptions(path string) ([]Subscription, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var file subscriptionsFile
	if err := yaml.NewDecoder(f).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := validate.Struct(&file); err != nil {
		return nil, fmt.Errorf("invalid subscriptions in %s: %w", path, err)
	}

	seen := make(map[string]bool, len(file.Subscriptions))
	for _, s := range file.Subscriptions {
		if seen[s.Topic] {
			return nil, fmt.Errorf("invalid subscriptions in %s: topic %q listed twice", path, s.Topic)
		}
		seen[s.Topic] = true
	}
	return file.Subscriptions, nil
}

// SubscriptionDiff is the work needed to move from one subscription set to another.
type SubscriptionDiff struct {
	Added   []Subscription
	Updated []Subscription // same topic, different options
	Removed []string
}

func (d SubscriptionDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0
}

// DiffSubscriptions compares two subscription sets. Output keeps the order of the inputs.
func DiffSubscriptions(before, after []Subscription) SubscriptionDiff {
	old := make(map[string]Subscription, len(before))
	for _, s := range before {
		old[s.Topic] = s
	}
	current := make(map[string]bool, len(after))

	var d SubscriptionDiff
	for _, s := range after {
		current[s.Topic] = true
		prev, ok := old[s.Topic]
		switch {
		case !ok:
			d.Added = append(d.Added, s)
		case !reflect.DeepEqual(prev.Options, s.Options):
			d.Updated = append(d.Updated, s)
		}
	}
	for _, s := range before {
		if !current[s.Topic] {
			d.Removed = append(d.Removed, s.Topic)
		}
	}
	return d
}
