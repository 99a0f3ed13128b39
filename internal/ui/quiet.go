package ui

// quietPresenter consumes events but produces no output.
type quietPresenter struct{}

func (p *quietPresenter) Run(events <-chan Event) error {
	//nolint:revive // empty-block: drains the channel so the engine never blocks
	for range events {
	}
	return nil
}
