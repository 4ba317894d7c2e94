package models

// PaginationRequest selects a window of a message list. Cursor is a message
// id; the window ends just before it.
type PaginationRequest struct {
	Limit  int    `json:"limit,omitempty"`
	Cursor string `json:"cursor,omitempty"`
}

type PaginationResponse struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
	Count      int    `json:"count"`
	Total      int    `json:"total,omitempty"`
}

// Page applies req to an ascending message list and returns the newest Limit
// messages older than the cursor, still in ascending order.
func Page(msgs []Message, req PaginationRequest) ([]Message, PaginationResponse) {
	end := len(msgs)
	if req.Cursor != "" {
		for i, m := range msgs {
			if m.ID == req.Cursor {
				end = i
				break
			}
		}
	}
	limit := req.Limit
	if limit <= 0 || limit > end {
		limit = end
	}
	start := end - limit
	out := msgs[start:end]
	resp := PaginationResponse{
		Limit:   limit,
		HasMore: start > 0,
		Count:   len(out),
		Total:   len(msgs),
	}
	if resp.HasMore && len(out) > 0 {
		resp.NextCursor = out[0].ID
	}
	return out, resp
}
