package hue

import (
	"fmt"
	"math"
)

// OwnerKind is the resource type that owns a grouped_light service.
type OwnerKind string

const (
	OwnerRoom OwnerKind = "room"
	OwnerZone OwnerKind = "zone"
)

// Owner references the room or zone configured as the command target.
type Owner struct {
	Kind OwnerKind `json:"kind"`
	ID   string    `json:"id"`
}

func (o Owner) String() string {
	return fmt.Sprintf("%s/%s", o.Kind, o.ID)
}

// ResourceTypeGroupedLight is the service type tag of a controllable group.
const ResourceTypeGroupedLight = "grouped_light"

// ResourceRef is a typed reference to another CLIP resource
type ResourceRef struct {
	RID   string `json:"rid"`
	RType string `json:"rtype"`
}

// Group is a room or zone resource
type Group struct {
	ID       string        `json:"id"`
	Services []ResourceRef `json:"services"`
	Metadata struct {
		Name string `json:"name"`
	} `json:"metadata"`
}

// FindService returns the rid of the first service with the given type.
func (g *Group) FindService(rtype string) (string, bool) {
	for _, s := range g.Services {
		if s.RType == rtype {
			return s.RID, true
		}
	}
	return "", false
}

// OnState is the on/off feature of lights and groups
type OnState struct {
	On bool `json:"on"`
}

// Dimming is the brightness feature of lights and groups, in percent
type Dimming struct {
	Brightness float64 `json:"brightness"`
}

// Level returns the brightness rounded to a whole percentage.
func (d *Dimming) Level() int {
	if d == nil {
		return 0
	}
	return int(math.Round(d.Brightness))
}

// GroupedLight is the controllable aggregate of a room or zone
type GroupedLight struct {
	ID      string   `json:"id"`
	On      *OnState `json:"on,omitempty"`
	Dimming *Dimming `json:"dimming,omitempty"`
}

// IsOn reports the group's on state; a missing feature counts as off.
func (g *GroupedLight) IsOn() bool {
	return g.On != nil && g.On.On
}

// Light is a single light resource
type Light struct {
	ID       string `json:"id"`
	Metadata struct {
		Name string `json:"name"`
	} `json:"metadata"`
	On      *OnState `json:"on,omitempty"`
	Dimming *Dimming `json:"dimming,omitempty"`
}

// IsOn reports the light's on state; a missing feature counts as off.
func (l *Light) IsOn() bool {
	return l.On != nil && l.On.On
}

// Recall is the scene activation command
type Recall struct {
	Action string `json:"action"`
}

// Update is a PUT body. Only set fields are sent.
type Update struct {
	On      *OnState `json:"on,omitempty"`
	Dimming *Dimming `json:"dimming,omitempty"`
	Recall  *Recall  `json:"recall,omitempty"`
}

// SetOn builds an on/off update.
func SetOn(on bool) Update {
	return Update{On: &OnState{On: on}}
}

// SetBrightness builds an absolute brightness update.
func SetBrightness(level int) Update {
	return Update{Dimming: &Dimming{Brightness: float64(level)}}
}

// RecallActive builds the scene recall update.
func RecallActive() Update {
	return Update{Recall: &Recall{Action: "active"}}
}

// APIError is an entry of the CLIP errors array
type APIError struct {
	Description string `json:"description"`
}

// envelope is the CLIP v2 response wrapper
type envelope[T any] struct {
	Errors []APIError `json:"errors"`
	Data   []T        `json:"data"`
}

// DiscoveredBridge is an entry of the discovery endpoint response
type DiscoveredBridge struct {
	ID                string `json:"id"`
	InternalIPAddress string `json:"internalipaddress"`
	Port              int    `json:"port,omitempty"`
}
