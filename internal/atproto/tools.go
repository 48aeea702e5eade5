package atproto

import (
	"atproto-mcp/internal/batch"
	"atproto-mcp/internal/tool"
)

// Group names in registration order.
const (
	GroupAuth       = "auth"
	GroupContent    = "content"
	GroupFeed       = "feed"
	GroupEngagement = "engagement"
	GroupSocial     = "social"
	GroupSearch     = "search"
	GroupMedia      = "media"
	GroupBatch      = "batch"
)

// Message is the payload of most single-target tools.
type Message struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Note    string `json:"note,omitempty"`
}

// message turns a client call into a Message payload.
func message(out string, err error) (Message, error) {
	if err != nil {
		return Message{}, err
	}
	return Message{Success: true, Message: out}, nil
}

// Toolset builds the tool catalog groups over one client and batch engine.
type Toolset struct {
	client *Client
	engine *batch.Engine
}

func NewToolset(client *Client, engine *batch.Engine) *Toolset {
	return &Toolset{client: client, engine: engine}
}

// Groups returns every tool group in registration order.
func (ts *Toolset) Groups() []tool.Group {
	return []tool.Group{
		ts.authGroup(),
		ts.contentGroup(),
		ts.feedGroup(),
		ts.engagementGroup(),
		ts.socialGroup(),
		ts.searchGroup(),
		ts.mediaGroup(),
		ts.batchGroup(),
	}
}

// Argument shapes shared by several tools.
type (
	handleArgs struct {
		Handle string `json:"handle" validate:"required" jsonschema_description:"User handle or DID (e.g. user.bsky.social)"`
	}
	uriArgs struct {
		URI string `json:"uri" validate:"required" jsonschema_description:"Post URI (at://... format)"`
	}
	postArgs struct {
		Text  string `json:"text" validate:"required" jsonschema_description:"The post text content"`
		Image string `json:"image,omitempty" jsonschema_description:"Optional path to image file to attach"`
	}
)
