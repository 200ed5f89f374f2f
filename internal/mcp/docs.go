package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `fieldaudit runs checklist audits on site and syncs them to the audit backend.

Core concepts:
- Template: ordered checklist items grouped by category. Some items only show when another item has a given answer.
- Audit key: draft:<template>:<schedule|none>:<location|none>. One open audit per key; every tool takes the key returned by open_audit.
- Draft: answers are saved on the device while you work and survive restarts until the backend confirms completion.
- Completed audits are read-only. Any edit after completion fails with SESSION_LOCKED.

Default workflow:
1) open_audit(template_id, location_id, site coordinates if the audit is site bound).
2) capture_location on site. Site-bound audits must pass a 100m start check before answers are accepted.
3) get_audit to see visible items, then set_response for each answer.
4) submit_audit. Failed saves are retried automatically; a partial outcome lists the items to resubmit.
5) close_audit when done. The draft stays on the device until the audit completes.

Docs:
- fieldaudit://docs/field-guide (answering items and submit outcomes)
- fieldaudit://docs/errors (error codes and what to do)
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "fieldaudit://docs/field-guide",
		Name:        "field_guide",
		Title:       "Field audit guide",
		Description: "How answers are recorded, when categories count as done, and what submit outcomes mean.",
		Content: `# Field audit guide

## Answering items

set_response takes an action per field type:

| field type | action | value |
|---|---|---|
| task | status | completed, pass, fail, not_applicable |
| option_select, single_answer, dropdown | select | option id |
| multiple_answer | toggle or selections | option id / option ids |
| short_answer, long_answer, number, date, time, scan_code, signature, description | text | the text |
| image_upload | photo | photo reference |
| any | clear | |

Use action "step" with a numeric value to remember the screen you were on.

"Attempt 1" to "Attempt 5" items feed an "Average (auto)" item. The average is computed and cannot be set directly.

## Visibility

Hidden items do not need answers. They are sent as not_applicable on submit and count as complete.

## Location

- capture_location before answering. Site-bound audits must be within 100m to start.
- On submit: within 150m is verified, up to 500m needs confirm_warning=true, beyond 500m is blocked.

## Submit outcomes

- success: every item saved. The audit completes once every visible category is complete.
- partial: some items failed; failed_items lists them. Submit again to retry them.
- failure: nothing was saved. Answers stay on the device.
- skipped: another submit for the same audit was still running.
`,
	},
	{
		URI:         "fieldaudit://docs/errors",
		Name:        "errors",
		Title:       "Error codes",
		Description: "Error codes returned by tools and how to recover.",
		Content: `# Error codes

- VALIDATION_FAILED: rejected on the device, nothing was sent. details.reason is one of required_missing, location_missing, location_blocked, confirmation_required, outside_start_radius.
- SESSION_LOCKED: the audit is completed on the server. Open a new audit.
- SESSION_NOT_FOUND / SESSION_CLOSED: call open_audit again; the draft is resumed.
- NOT_STARTED: capture the location on site first.
- UNKNOWN_ITEM / UNKNOWN_OPTION / DERIVED_FIELD: use ids from get_audit; averages are computed.
- NETWORK_UNAVAILABLE / SYNC_FAILED: the backend could not be reached. Answers are kept; try again later.
- REJECTED: the backend refused the request. Retrying will not help.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
