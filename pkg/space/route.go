package space

// Route is the outcome of a sheet-crossing query. The set of variants is closed.
type Route interface {
	isRoute()
}

// DirectPath connects two states on the same sheet.
type DirectPath struct {
	Distance float64
}

// SheetJump connects two states on different sheets.
type SheetJump struct {
	Energy float64
	Risk   float64
}

// Blocked means no route exists.
type Blocked struct {
	Reason string
}

func (DirectPath) isRoute() {}
func (SheetJump) isRoute()  {}
func (Blocked) isRoute()    {}
