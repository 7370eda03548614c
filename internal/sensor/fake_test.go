package sensor

type fakeSensor struct {
	name  string
	kind  Kind
	value float64
	ok    bool
}

func (s *fakeSensor) Name() string          { return s.name }
func (s *fakeSensor) Kind() Kind            { return s.kind }
func (s *fakeSensor) Value() (float64, bool) { return s.value, s.ok }

func temp(name string, v float64) *fakeSensor {
	return &fakeSensor{name: name, kind: KindTemperature, value: v, ok: true}
}

func load(name string, v float64) *fakeSensor {
	return &fakeSensor{name: name, kind: KindLoad, value: v, ok: true}
}

func emptyTemp(name string) *fakeSensor {
	return &fakeSensor{name: name, kind: KindTemperature}
}

type fakeHardware struct {
	name    string
	id      string
	typ     HardwareType
	sensors []Sensor
	subs    []Hardware
	updates int
	// onUpdate lets a test change sensor values between reads.
	onUpdate func()
}

func (h *fakeHardware) Name() string            { return h.name }
func (h *fakeHardware) Identifier() string      { return h.id }
func (h *fakeHardware) Type() HardwareType      { return h.typ }
func (h *fakeHardware) Sensors() []Sensor       { return h.sensors }
func (h *fakeHardware) SubHardware() []Hardware { return h.subs }
func (h *fakeHardware) Update() {
	h.updates++
	if h.onUpdate != nil {
		h.onUpdate()
	}
}

type fakeComputer struct {
	nodes   []Hardware
	opened  Subsystems
	openErr error
}

func (c *fakeComputer) Open(s Subsystems) error {
	c.opened = s
	return c.openErr
}

func (c *fakeComputer) Hardware() []Hardware { return c.nodes }

type fakeChooser struct {
	answer  int
	err     error
	calls   int
	options []string
}

func (c *fakeChooser) Choose(_ string, options []string) (int, error) {
	c.calls++
	c.options = options
	return c.answer, c.err
}
