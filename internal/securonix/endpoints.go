package securonix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// decodeJSON parses a response body into a generic map. UseNumber keeps
// vendor IDs intact; they may exceed float64 precision.
func decodeJSON(op string, body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("securonix: %s: response is not valid JSON: %w; body: %s", op, err, truncate(string(body), 512))
	}
	return m, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, params url.Values) (map[string]any, error) {
	body, err := c.do(ctx, http.MethodGet, path, params, c.authHeader())
	if err != nil {
		return nil, err
	}
	return decodeJSON(op, body)
}

func (c *Client) postJSON(ctx context.Context, op, path string, params url.Values) (map[string]any, error) {
	body, err := c.do(ctx, http.MethodPost, path, params, c.authHeader())
	if err != nil {
		return nil, err
	}
	return decodeJSON(op, body)
}

// ListWorkflows returns the incident workflows configured on the tenant.
func (c *Client) ListWorkflows(ctx context.Context) ([]map[string]any, error) {
	params := url.Values{"type": {"workflows"}}
	m, err := c.getJSON(ctx, "list workflows", "incident/get", params)
	if err != nil {
		return nil, err
	}
	return asMapList(dig(m, "result", "workflows")), nil
}

// GetDefaultAssignee returns the default assignee for a workflow.
func (c *Client) GetDefaultAssignee(ctx context.Context, workflow string) (map[string]any, error) {
	params := url.Values{
		"type":     {"defaultAssignee"},
		"workflow": {workflow},
	}
	m, err := c.getJSON(ctx, "get default assignee", "incident/get", params)
	if err != nil {
		return nil, err
	}
	res, _ := dig(m, "result").(map[string]any)
	return res, nil
}

// ListThreatActions returns the actions that can be taken on a threat.
func (c *Client) ListThreatActions(ctx context.Context) ([]string, error) {
	params := url.Values{"type": {"threatActions"}}
	m, err := c.getJSON(ctx, "list threat actions", "incident/get", params)
	if err != nil {
		return nil, err
	}
	return asStringList(dig(m, "result")), nil
}

// ListPolicies returns all policies. The vendor serves this endpoint as XML;
// the response is transcoded to a JSON-ready form before use.
func (c *Client) ListPolicies(ctx context.Context) ([]map[string]any, error) {
	body, err := c.do(ctx, http.MethodGet, "policy/getAllPolicies", nil, c.authHeader())
	if err != nil {
		return nil, err
	}
	m, err := decodeXML("list policies", body)
	if err != nil {
		return nil, err
	}
	return asMapList(dig(m, "policies", "policy")), nil
}

// ListResourceGroups returns all resource groups (XML endpoint).
func (c *Client) ListResourceGroups(ctx context.Context) ([]map[string]any, error) {
	body, err := c.do(ctx, http.MethodGet, "list/resourceGroups", nil, c.authHeader())
	if err != nil {
		return nil, err
	}
	m, err := decodeXML("list resource groups", body)
	if err != nil {
		return nil, err
	}
	return asMapList(dig(m, "resourceGroups", "resourceGroup")), nil
}

// ListUsers returns all users (XML endpoint).
func (c *Client) ListUsers(ctx context.Context) ([]map[string]any, error) {
	body, err := c.do(ctx, http.MethodGet, "list/allUsers", nil, c.authHeader())
	if err != nil {
		return nil, err
	}
	m, err := decodeXML("list users", body)
	if err != nil {
		return nil, err
	}
	return asMapList(dig(m, "users", "user")), nil
}

// SearchActivity queries the activity index. from and to use the vendor's
// "MM/dd/yyyy HH:mm:ss" event-time format; query is ANDed onto the index
// selector when non-empty.
func (c *Client) SearchActivity(ctx context.Context, from, to, query string) (map[string]any, error) {
	q := "index=activity"
	if query != "" {
		q += " AND " + query
	}
	params := url.Values{
		"query":          {q},
		"eventtime_from": {from},
		"eventtime_to":   {to},
		"prettyJson":     {"true"},
	}
	m, err := c.getJSON(ctx, "search activity", "spotter/index/search", params)
	if err != nil {
		return nil, err
	}
	if msg := vendorError(m); msg != "" {
		return nil, &DomainError{Op: "search activity", Message: msg}
	}
	return m, nil
}

// SearchViolations queries the violation index.
func (c *Client) SearchViolations(ctx context.Context, from, to, query string) (map[string]any, error) {
	q := "index=violation"
	if query != "" {
		q += " AND " + query
	}
	params := url.Values{
		"query":               {q},
		"generationtime_from": {from},
		"generationtime_to":   {to},
		"prettyJson":          {"true"},
	}
	m, err := c.getJSON(ctx, "search violations", "spotter/index/search", params)
	if err != nil {
		return nil, err
	}
	if msg := vendorError(m); msg != "" {
		return nil, &DomainError{Op: "search violations", Message: msg}
	}
	return m, nil
}

// Incident is the slice of the vendor incident object the adapters need,
// plus the raw form for pass-through.
type Incident struct {
	ID             string
	Priority       string
	LastUpdateDate int64 // epoch milliseconds
	Raw            map[string]any
}

// IncidentList is one page of the vendor incident listing.
type IncidentList struct {
	Total float64
	Items []Incident
}

// ListIncidents lists incidents in the [fromEpoch, toEpoch] window (epoch
// milliseconds). rangeType selects the vendor range, e.g.
// "updated,opened,closed".
func (c *Client) ListIncidents(ctx context.Context, fromEpoch, toEpoch int64, rangeType string) (*IncidentList, error) {
	params := url.Values{
		"type":      {"list"},
		"from":      {fmt.Sprintf("%d", fromEpoch)},
		"to":        {fmt.Sprintf("%d", toEpoch)},
		"rangeType": {rangeType},
	}
	m, err := c.getJSON(ctx, "list incidents", "incident/get", params)
	if err != nil {
		return nil, err
	}

	data, _ := dig(m, "result", "data").(map[string]any)
	list := &IncidentList{Total: asFloat(data["totalIncidents"])}
	for _, item := range asMapList(data["incidentItems"]) {
		list.Items = append(list.Items, Incident{
			ID:             asString(item["incidentId"]),
			Priority:       asString(item["priority"]),
			LastUpdateDate: asInt64(item["lastUpdateDate"]),
			Raw:            item,
		})
	}
	return list, nil
}

// GetIncident returns the meta info items for one incident.
func (c *Client) GetIncident(ctx context.Context, incidentID string) ([]map[string]any, error) {
	params := url.Values{
		"type":       {"metaInfo"},
		"incidentId": {incidentID},
	}
	m, err := c.getJSON(ctx, "get incident", "incident/get", params)
	if err != nil {
		return nil, err
	}
	items := asMapList(dig(m, "result", "data", "incidentItems"))
	if len(items) == 0 {
		return nil, &DomainError{Op: "get incident", Message: fmt.Sprintf("incident %s is not in Securonix", incidentID)}
	}
	return items, nil
}

// GetIncidentStatus returns the current status of one incident.
func (c *Client) GetIncidentStatus(ctx context.Context, incidentID string) (string, error) {
	params := url.Values{
		"type":       {"status"},
		"incidentId": {incidentID},
	}
	m, err := c.getJSON(ctx, "get incident status", "incident/get", params)
	if err != nil {
		return "", err
	}
	return asString(dig(m, "result", "status")), nil
}

// GetIncidentWorkflow returns the workflow an incident runs under.
func (c *Client) GetIncidentWorkflow(ctx context.Context, incidentID string) (string, error) {
	params := url.Values{
		"type":       {"workflow"},
		"incidentId": {incidentID},
	}
	m, err := c.getJSON(ctx, "get incident workflow", "incident/get", params)
	if err != nil {
		return "", err
	}
	return asString(dig(m, "result", "workflow")), nil
}

// GetIncidentActions returns the actions currently available on an incident.
// Closed incidents typically have none; that is not an error.
func (c *Client) GetIncidentActions(ctx context.Context, incidentID string) ([]string, error) {
	params := url.Values{
		"type":       {"actions"},
		"incidentId": {incidentID},
	}
	m, err := c.getJSON(ctx, "get incident actions", "incident/get", params)
	if err != nil {
		return nil, err
	}
	return asStringList(dig(m, "result", "actions")), nil
}

// PerformIncidentAction performs a lifecycle action on an incident.
//
// The vendor requires a two-step dance: first validate the action via the
// actionInfo lookup, then submit it. Both vendor-side rejections surface as
// *DomainError.
func (c *Client) PerformIncidentAction(ctx context.Context, incidentID, action string) error {
	op := fmt.Sprintf("perform action %q on incident %s", action, incidentID)
	params := url.Values{
		"type":       {"actionInfo"},
		"incidentId": {incidentID},
		"actionName": {action},
	}

	info, err := c.getJSON(ctx, op, "incident/get", params)
	if err != nil {
		return err
	}
	if msg := vendorError(info); msg != "" {
		return &DomainError{Op: op, Message: msg}
	}

	m, err := c.postJSON(ctx, op, "incident/actions", params)
	if err != nil {
		return err
	}
	if asString(m["result"]) != "submitted" {
		return &DomainError{Op: op, Message: fmt.Sprintf("vendor did not accept the action: %v", m["result"])}
	}
	return nil
}

// CreateIncidentParams are the vendor fields for incident creation. The
// first five are required.
type CreateIncidentParams struct {
	PolicyName    string
	ResourceGroup string
	EntityType    string
	EntityName    string
	ActionName    string

	ResourceName string
	Workflow     string
	Comment      string
	EmployeeID   string
	Criticality  string
}

// CreateIncident creates an incident.
func (c *Client) CreateIncident(ctx context.Context, p CreateIncidentParams) (map[string]any, error) {
	params := url.Values{
		"violationName":  {p.PolicyName},
		"datasourceName": {p.ResourceGroup},
		"entityType":     {p.EntityType},
		"entityName":     {p.EntityName},
		"actionName":     {p.ActionName},
	}
	if p.Comment != "" {
		params.Set("comment", p.Comment)
	}
	if p.ResourceName != "" {
		params.Set("resourceName", p.ResourceName)
	}
	if p.EmployeeID != "" {
		params.Set("employeeid", p.EmployeeID)
	}
	if p.Workflow != "" {
		params.Set("workflow", p.Workflow)
	}
	if p.Criticality != "" {
		params.Set("criticality", p.Criticality)
	}

	m, err := c.postJSON(ctx, "create incident", "incident/actions", params)
	if err != nil {
		return nil, err
	}
	result, _ := dig(m, "result").(map[string]any)
	if len(result) == 0 {
		return nil, &DomainError{Op: "create incident", Message: "vendor returned no incident data"}
	}
	return result, nil
}

// AddComment adds a comment to an incident.
func (c *Client) AddComment(ctx context.Context, incidentID, comment string) error {
	params := url.Values{
		"incidentId": {incidentID},
		"comment":    {comment},
		"actionName": {"comment"},
	}
	m, err := c.postJSON(ctx, "add comment", "incident/actions", params)
	if err != nil {
		return err
	}
	if m["result"] == nil {
		return &DomainError{Op: "add comment", Message: fmt.Sprintf("failed to add comment to incident %s", incidentID)}
	}
	return nil
}

// ListWatchlists returns all watchlist names.
func (c *Client) ListWatchlists(ctx context.Context) ([]string, error) {
	m, err := c.getJSON(ctx, "list watchlists", "incident/listWatchlist", nil)
	if err != nil {
		return nil, err
	}
	names := asStringList(dig(m, "result"))
	if len(names) == 0 {
		return nil, &DomainError{Op: "list watchlists", Message: "vendor returned no watchlists"}
	}
	return names, nil
}

// GetWatchlist returns the member events of a watchlist via the spotter
// index.
//
// Errors:
//   - *DomainError when the watchlist has no events (empty or misspelled).
func (c *Client) GetWatchlist(ctx context.Context, name string) ([]map[string]any, error) {
	params := url.Values{
		"query": {fmt.Sprintf(`index=watchlist AND watchlistname="%s"`, name)},
	}
	m, err := c.getJSON(ctx, "get watchlist", "spotter/index/search", params)
	if err != nil {
		return nil, err
	}
	events := asMapList(m["events"])
	if len(events) == 0 {
		return nil, &DomainError{
			Op:      "get watchlist",
			Message: fmt.Sprintf("watchlist %q contains no items; make sure it is not empty and the name is correct", name),
		}
	}
	return events, nil
}

// CreateWatchlist creates a watchlist.
func (c *Client) CreateWatchlist(ctx context.Context, name string) (map[string]any, error) {
	params := url.Values{"watchlistname": {name}}
	m, err := c.postJSON(ctx, "create watchlist", "incident/createWatchlist", params)
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, &DomainError{Op: "create watchlist", Message: fmt.Sprintf("failed to create watchlist %q", name)}
	}
	return m, nil
}

// CheckEntityInWatchlist returns the names of the watchlists an entity
// belongs to. An empty result means the entity is not watchlisted; that is
// not an error.
func (c *Client) CheckEntityInWatchlist(ctx context.Context, entityID string) ([]string, error) {
	params := url.Values{"entityid": {entityID}}
	m, err := c.getJSON(ctx, "check entity in watchlist", "incident/checkIfWatchlisted", params)
	if err != nil {
		return nil, err
	}
	return asStringList(dig(m, "result")), nil
}

// AddEntityToWatchlist adds an entity to a watchlist. The vendor answers
// this endpoint with plain text; anything but its success phrase is a
// vendor-side failure.
func (c *Client) AddEntityToWatchlist(ctx context.Context, watchlist, entityType, entityID, expiryDays, resourceName string) error {
	params := url.Values{
		"watchlistname": {watchlist},
		"entitytype":    {entityType},
		"entityid":      {entityID},
		"expirydays":    {expiryDays},
	}
	if resourceName != "" {
		params.Set("resourcegroupid", resourceName)
	}

	body, err := c.do(ctx, http.MethodPost, "incident/addToWatchlist", params, c.authHeader())
	if err != nil {
		return err
	}
	// The vendor's success phrase, typo included.
	if !bytes.Contains(body, []byte("Add to watchlist successfull")) {
		return &DomainError{
			Op:      "add entity to watchlist",
			Message: fmt.Sprintf("failed to add entity %s to watchlist %s: %s", entityID, watchlist, truncate(string(body), 512)),
		}
	}
	return nil
}

// vendorError extracts a vendor-reported failure from an otherwise
// successful JSON response.
func vendorError(m map[string]any) string {
	if m == nil {
		return ""
	}
	if _, ok := m["error"]; !ok {
		return ""
	}
	if msg := asString(m["errorMessage"]); msg != "" {
		return msg
	}
	return asString(m["error"])
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
