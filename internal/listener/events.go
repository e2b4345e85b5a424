package listener

import (
	"encoding/json"
	"net/http"
)

type deliveryInfo struct {
	Source string
	Event  string
	ID     string
}

// identifyDelivery reads the per-host event headers. Gitea sends both
// its own headers and GitHub-compatible ones, so it is checked first.
func identifyDelivery(header http.Header) deliveryInfo {
	if event := header.Get("X-Gitea-Event"); event != "" {
		return deliveryInfo{Source: "gitea", Event: event, ID: header.Get("X-Gitea-Delivery")}
	}
	if event := header.Get("X-GitHub-Event"); event != "" {
		return deliveryInfo{Source: "github", Event: event, ID: header.Get("X-GitHub-Delivery")}
	}
	if event := header.Get("X-Gitlab-Event"); event != "" {
		return deliveryInfo{Source: "gitlab", Event: event, ID: header.Get("X-Gitlab-Event-UUID")}
	}
	return deliveryInfo{Source: "unknown", Event: "unknown"}
}

// Summary is the one-line digest logged per delivery.
type Summary struct {
	Event  string
	Action string
	Repo   string
	Sender string
	Number int
	Title  string
}

type webhookPayload struct {
	ObjectKind string `json:"object_kind"`
	Action     string `json:"action"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Project struct {
		PathWithNamespace string `json:"path_with_namespace"`
	} `json:"project"`
	Sender struct {
		Login string `json:"login"`
	} `json:"sender"`
	User struct {
		Username string `json:"username"`
	} `json:"user"`
	Number      int `json:"number"`
	PullRequest struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
	} `json:"pull_request"`
	Issue struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
	} `json:"issue"`
	ObjectAttributes struct {
		IID    int    `json:"iid"`
		Title  string `json:"title"`
		Action string `json:"action"`
		Note   string `json:"note"`
	} `json:"object_attributes"`
	MergeRequest struct {
		IID   int    `json:"iid"`
		Title string `json:"title"`
	} `json:"merge_request"`
	Ref     string `json:"ref"`
	Comment struct {
		Body string `json:"body"`
	} `json:"comment"`
}

// summarize extracts the fields worth logging from a delivery. GitLab
// nests everything under object_attributes while GitHub and Gitea share
// one shape, so both are probed.
func summarize(delivery deliveryInfo, body []byte) Summary {
	summary := Summary{Event: delivery.Event}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return summary
	}

	if delivery.Source == "gitlab" && payload.ObjectKind != "" {
		summary.Event = payload.ObjectKind
	}

	summary.Action = payload.Action
	if summary.Action == "" {
		summary.Action = payload.ObjectAttributes.Action
	}

	summary.Repo = payload.Repository.FullName
	if summary.Repo == "" {
		summary.Repo = payload.Project.PathWithNamespace
	}

	summary.Sender = payload.Sender.Login
	if summary.Sender == "" {
		summary.Sender = payload.User.Username
	}

	switch {
	case payload.PullRequest.Number > 0:
		summary.Number = payload.PullRequest.Number
		summary.Title = payload.PullRequest.Title
	case payload.Issue.Number > 0:
		summary.Number = payload.Issue.Number
		summary.Title = payload.Issue.Title
	case payload.MergeRequest.IID > 0:
		summary.Number = payload.MergeRequest.IID
		summary.Title = payload.MergeRequest.Title
	case payload.ObjectAttributes.IID > 0:
		summary.Number = payload.ObjectAttributes.IID
		summary.Title = payload.ObjectAttributes.Title
	case payload.Number > 0:
		summary.Number = payload.Number
	}

	if summary.Title == "" && payload.Ref != "" {
		summary.Title = payload.Ref
	}
	return summary
}
