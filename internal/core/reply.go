package core

// UpdateStatus is an agent's self-reported status for one parameter.
type UpdateStatus string

const (
	UpdateProposing      UpdateStatus = "proposing"
	UpdateAccepted       UpdateStatus = "accepted"
	UpdateNeedOwnerInput UpdateStatus = "need_owner_input"
)

// ParameterUpdate is one entry of the [PARAMETERS] block in an agent reply.
type ParameterUpdate struct {
	Name       string       `json:"name"`
	MyPosition string       `json:"my_position"`
	Status     UpdateStatus `json:"status"`
}

// ParsedReply is an agent reply classified by whether it carries a
// structured parameter block. It is either PlainReply or StructuredReply.
type ParsedReply interface {
	Raw() string
	parsedReply()
}

// PlainReply is free text without a usable parameter block.
type PlainReply struct {
	Text string
}

func (r PlainReply) Raw() string { return r.Text }
func (PlainReply) parsedReply()  {}

// StructuredReply is free text carrying parameter updates.
type StructuredReply struct {
	Text    string
	Updates []ParameterUpdate
}

func (r StructuredReply) Raw() string { return r.Text }
func (StructuredReply) parsedReply()  {}

// NeedsOwnerInput returns the updates flagged need_owner_input.
func (r StructuredReply) NeedsOwnerInput() []ParameterUpdate {
	var out []ParameterUpdate
	for _, u := range r.Updates {
		if u.Status == UpdateNeedOwnerInput {
			out = append(out, u)
		}
	}
	return out
}
