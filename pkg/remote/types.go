// pkg/remote/types.go

package remote

// ItemPayload is the item shape sent to the remote system. SourceID carries
// the local item id so the response can be matched back; the remote system
// echoes it, it never interprets it.
type ItemPayload struct {
	SourceID    string `json:"source_id,omitempty"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// ListPayload is the list-creation request body. Items ride along because
// the remote contract only creates items bundled with their parent list.
type ListPayload struct {
	SourceID string        `json:"source_id,omitempty"`
	Name     string        `json:"name"`
	Items    []ItemPayload `json:"items"`
}

// RemoteItem is an item as the remote system reports it.
type RemoteItem struct {
	ID          string `json:"id"`
	SourceID    string `json:"source_id,omitempty"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// RemoteList is a list as the remote system reports it. SourceID is empty
// for lists created directly on the remote side.
type RemoteList struct {
	ID       string       `json:"id"`
	SourceID string       `json:"source_id,omitempty"`
	Name     string       `json:"name"`
	Items    []RemoteItem `json:"items"`
}

// ItemBySourceID returns the response item echoing the given source id, or
// nil if the remote response carries no recognizable match.
func (l *RemoteList) ItemBySourceID(sourceID string) *RemoteItem {
	if sourceID == "" {
		return nil
	}
	for idx := range l.Items {
		if l.Items[idx].SourceID == sourceID {
			return &l.Items[idx]
		}
	}
	return nil
}
