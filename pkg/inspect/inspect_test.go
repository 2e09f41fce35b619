package inspect

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/indi-protocol/indi-go/pkg/property"
	"github.com/indi-protocol/indi-go/pkg/version"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

const fixture = `<defSwitchVector device="CCD Simulator" name="CONNECTION" group="Main Control" state="Ok" perm="rw" rule="OneOfMany">
  <defSwitch name="CONNECT">On</defSwitch>
  <defSwitch name="DISCONNECT">Off</defSwitch>
</defSwitchVector>
<defNumberVector device="CCD Simulator" name="CCD_EXPOSURE" label="Expose" group="Main Control" state="Idle" perm="rw" timeout="60">
  <defNumber name="CCD_EXPOSURE_VALUE" label="Duration (s)" format="%5.2f" min="0.01" max="3600" step="1">1</defNumber>
</defNumberVector>
<defTextVector device="CCD Simulator" name="DRIVER_INFO" group="General Info" state="Idle" perm="ro">
  <defText name="DRIVER_NAME">CCD Simulator</defText>
  <defText name="DRIVER_EXEC">indi_simulator_ccd</defText>
</defTextVector>
<defNumberVector device="Telescope Simulator" name="EQUATORIAL_EOD_COORD" group="Main Control" state="Ok" perm="rw">
  <defNumber name="RA" format="%010.6m" min="0" max="24" step="0">12.5</defNumber>
  <defNumber name="DEC" format="%010.6m" min="-90" max="90" step="0">-30.25</defNumber>
</defNumberVector>
<defBLOBVector device="CCD Simulator" name="CCD1" group="Image Info" state="Idle" perm="ro">
  <defBLOB name="CCD1"/>
</defBLOBVector>`

func decodeAll(t *testing.T, xml string) []wire.Message {
	t.Helper()
	nodes, err := wire.ParseNodes(strings.NewReader("<indi>" + xml + "</indi>"))
	require.NoError(t, err)
	msgs := make([]wire.Message, 0, len(nodes))
	for i := range nodes {
		m, err := wire.Decode(&nodes[i])
		require.NoError(t, err)
		msgs = append(msgs, m)
	}
	return msgs
}

func testStore(t *testing.T) *property.Store {
	t.Helper()
	msgs := decodeAll(t, fixture)
	s := property.NewStore(property.StoreConfig{})
	for _, m := range msgs {
		_, err := s.Apply(m)
		require.NoError(t, err)
	}
	return s
}

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) SetValues(device, name string, values map[string]string) error {
	args := m.Called(device, name, values)
	return args.Error(0)
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Path
		wantErr error
	}{
		{"DeviceOnly", "CCD Simulator", Path{Device: "CCD Simulator", Property: "*", Element: "*"}, nil},
		{"DeviceProperty", "CCD Simulator.CCD_EXPOSURE", Path{Device: "CCD Simulator", Property: "CCD_EXPOSURE", Element: "*"}, nil},
		{"Full", "CCD Simulator.CCD_EXPOSURE.CCD_EXPOSURE_VALUE", Path{Device: "CCD Simulator", Property: "CCD_EXPOSURE", Element: "CCD_EXPOSURE_VALUE"}, nil},
		{"Wildcards", "*.CONNECTION.CONNECT", Path{Device: "*", Property: "CONNECTION", Element: "CONNECT"}, nil},
		{"Trimmed", "  Telescope Simulator . EQUATORIAL_EOD_COORD ", Path{Device: "Telescope Simulator", Property: "EQUATORIAL_EOD_COORD", Element: "*"}, nil},
		{"Empty", "   ", Path{}, ErrEmptyPath},
		{"EmptyPart", "CCD Simulator..X", Path{}, ErrInvalidPath},
		{"TooManyParts", "a.b.c.d", Path{}, ErrInvalidPath},
		{"BadPattern", "CCD[", Path{}, ErrInvalidPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePath(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Device, got.Device)
			assert.Equal(t, tt.want.Property, got.Property)
			assert.Equal(t, tt.want.Element, got.Element)
		})
	}
}

func TestParseAssignment(t *testing.T) {
	p, value, err := ParseAssignment("CCD Simulator.CCD_EXPOSURE.CCD_EXPOSURE_VALUE = 2.5")
	require.NoError(t, err)
	assert.Equal(t, "CCD_EXPOSURE_VALUE", p.Element)
	assert.Equal(t, "2.5", value)

	_, _, err = ParseAssignment("CCD Simulator.CCD_EXPOSURE.CCD_EXPOSURE_VALUE")
	assert.ErrorIs(t, err, ErrMissingValue)

	_, _, err = ParseAssignment("CCD Simulator.CCD_EXPOSURE=2")
	assert.ErrorIs(t, err, ErrWildcardSet)

	_, _, err = ParseAssignment("CCD*.CCD_EXPOSURE.CCD_EXPOSURE_VALUE=2")
	assert.ErrorIs(t, err, ErrWildcardSet)
}

func TestPathMatch(t *testing.T) {
	p, err := ParsePath("CCD*.CCD_?XPOSURE")
	require.NoError(t, err)
	assert.True(t, p.MatchDevice("CCD Simulator"))
	assert.False(t, p.MatchDevice("Telescope Simulator"))
	assert.True(t, p.MatchProperty("CCD_EXPOSURE"))
	assert.True(t, p.MatchElement("anything"))
	assert.False(t, p.IsExact())
	assert.Equal(t, "CCD*.CCD_?XPOSURE.*", p.String())
}

func TestInspectorDevices(t *testing.T) {
	i := NewInspector(testStore(t), nil)

	devices := i.Devices()
	require.Len(t, devices, 2)
	assert.Equal(t, "CCD Simulator", devices[0].Name)
	assert.Equal(t, 4, devices[0].Properties)
	assert.True(t, devices[0].Connected)
	assert.Equal(t, []string{"General Info", "Image Info", "Main Control"}, devices[0].Groups)

	assert.Equal(t, "Telescope Simulator", devices[1].Name)
	assert.False(t, devices[1].Connected)
}

func TestInspectorRead(t *testing.T) {
	i := NewInspector(testStore(t), nil)

	p, _ := ParsePath("*.EQUATORIAL_EOD_COORD")
	readings, err := i.Read(p)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, "Telescope Simulator.EQUATORIAL_EOD_COORD.RA", readings[0].Path())
	assert.Equal(t, "  12:30:00", readings[0].Value)
	assert.Equal(t, " -30:15:00", readings[1].Value)
	assert.Equal(t, wire.StateOk, readings[1].State)

	p, _ = ParsePath("CCD Simulator.DRIVER_INFO.DRIVER_EXEC")
	readings, err = i.Read(p)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, "indi_simulator_ccd", readings[0].Value)

	p, _ = ParsePath("Focuser")
	_, err = i.Read(p)
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestInspectorWrite(t *testing.T) {
	w := &mockWriter{}
	i := NewInspector(testStore(t), w)

	w.On("SetValues", "CCD Simulator", "CCD_EXPOSURE", map[string]string{"CCD_EXPOSURE_VALUE": "2.5"}).Return(nil).Once()

	p, value, err := ParseAssignment("CCD Simulator.CCD_EXPOSURE.CCD_EXPOSURE_VALUE=2.5")
	require.NoError(t, err)
	require.NoError(t, i.Write(p, value))
	w.AssertExpectations(t)

	p, _ = ParsePath("CCD Simulator.DRIVER_INFO.DRIVER_NAME")
	assert.ErrorIs(t, i.Write(p, "x"), ErrNotWritable)

	p, _ = ParsePath("CCD Simulator.CCD_EXPOSURE.NOPE")
	assert.ErrorIs(t, i.Write(p, "1"), ErrElementMissing)

	p, _ = ParsePath("Focuser.ABS_FOCUS_POSITION.FOCUS_ABSOLUTE_POSITION")
	assert.ErrorIs(t, i.Write(p, "1"), ErrNoMatch)

	p, _ = ParsePath("CCD Simulator.CCD_EXPOSURE")
	assert.ErrorIs(t, i.Write(p, "1"), ErrWildcardSet)

	w.AssertNumberOfCalls(t, "SetValues", 1)
}

func TestInspectorWriteReadOnly(t *testing.T) {
	i := NewInspector(testStore(t), nil)
	p, _ := ParsePath("CCD Simulator.CCD_EXPOSURE.CCD_EXPOSURE_VALUE")
	assert.ErrorIs(t, i.Write(p, "1"), ErrNotWritable)
}

func TestInspectorCheck(t *testing.T) {
	cat, err := version.LoadCurrentCatalogue()
	require.NoError(t, err)

	i := NewInspector(testStore(t), nil)
	res, err := i.Check("CCD Simulator", cat)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Standard)
	assert.Zero(t, res.Custom)
	assert.Len(t, res.Warnings, 2, "DRIVER_INFO lacks DRIVER_VERSION and DRIVER_INTERFACE")

	_, err = i.Check("Focuser Simulator", cat)
	assert.Error(t, err)
}

func TestFormatValue(t *testing.T) {
	f := &Formatter{}

	tests := []struct {
		name     string
		value    any
		expected string
	}{
		{"nil", nil, "-"},
		{"string", "Ok", `"Ok"`},
		{"number", 2.5, "2.5"},
		{"blob", make([]byte, 2048), "2.0 KiB"},
		{"other", 7, "7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, f.FormatValue(tt.value))
		})
	}
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.5 KiB", FormatSize(1536))
	assert.Equal(t, "3.0 MiB", FormatSize(3<<20))
}

func TestFormatProperty(t *testing.T) {
	s := testStore(t)
	p, ok := s.Get("CCD Simulator", "CCD_EXPOSURE")
	require.True(t, ok)

	f := NewFormatter()
	out := f.FormatProperty(p)
	assert.Equal(t, "[Idle ] CCD_EXPOSURE Number {rw, timeout 60s}\n"+
		"  CCD_EXPOSURE_VALUE =  1.00  [0.01 .. 3600 step 1, %5.2f]\n", out)

	f.ShowMetadata = false
	f.ShowLabels = true
	out = f.FormatProperty(p)
	assert.Equal(t, "[Idle ] CCD_EXPOSURE (Expose) Number\n"+
		"  CCD_EXPOSURE_VALUE (Duration (s)) =  1.00\n", out)
}

func TestFormatDevice(t *testing.T) {
	s := testStore(t)
	props, err := s.Properties("CCD Simulator")
	require.NoError(t, err)

	f := NewFormatter()
	f.ShowMetadata = false
	out := f.FormatDevice("CCD Simulator", props)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Equal(t, "CCD Simulator", lines[0])
	assert.Equal(t, "  General Info", lines[1])
	assert.Equal(t, "    [Idle ] DRIVER_INFO Text", lines[2])
	assert.Equal(t, "      DRIVER_NAME = CCD Simulator", lines[3])
	assert.Contains(t, out, "  Image Info\n    [Idle ] CCD1 BLOB\n      CCD1 = -\n")
	assert.Contains(t, out, "      CONNECT = On\n")

	assert.Equal(t, "Focuser\n  (no properties)\n", f.FormatDevice("Focuser", nil))
}

func TestFormatDeviceTable(t *testing.T) {
	f := NewFormatter()
	assert.Equal(t, "  (no devices)", f.FormatDeviceTable(nil))

	out := f.FormatDeviceTable([]DeviceInfo{
		{Name: "CCD Simulator", Properties: 4, Connected: true, Groups: []string{"Main Control"}},
		{Name: "Focuser", Properties: 1},
	})
	assert.Equal(t, "  CCD Simulator: 4 properties, connected (Main Control)\n"+
		"  Focuser: 1 properties, disconnected\n", out)
}

func TestFormatMessage(t *testing.T) {
	f := NewFormatter()

	v, err := wire.NewNumberVector("Telescope Simulator", "EQUATORIAL_EOD_COORD",
		wire.OneNumber("RA", 12.5), wire.OneNumber("DEC", -30))
	require.NoError(t, err)
	assert.Equal(t, "newNumberVector Telescope Simulator.EQUATORIAL_EOD_COORD RA=12.5 DEC=-30", f.FormatMessage(v))

	assert.Equal(t, `enableBLOB CCD Simulator "Also"`, f.FormatMessage(wire.EnableBLOB("CCD Simulator", "", wire.BLOBAlso)))
	assert.Equal(t, "getProperties", f.FormatMessage(wire.GetProperties("", "")))

	msgs := decodeAll(t, `<message device="CCD Simulator" message="Exposure done"/>`+
		`<setBLOBVector device="CCD Simulator" name="CCD1" state="Ok"><oneBLOB name="CCD1" size="3" format=".fits">AAEC</oneBLOB></setBLOBVector>`)
	require.Len(t, msgs, 2)
	assert.Equal(t, `message CCD Simulator "Exposure done"`, f.FormatMessage(msgs[0]))
	assert.Equal(t, "setBLOBVector CCD Simulator.CCD1 [Ok   ] CCD1=3 B", f.FormatMessage(msgs[1]))
}

func TestFormatChange(t *testing.T) {
	f := NewFormatter()
	p := &property.Property{
		Device: "CCD Simulator", Name: "CONNECTION", State: wire.StateOk,
		Elements: []property.Element{{Name: "CONNECT", Value: "On"}, {Name: "DISCONNECT", Value: "Off"}, {Name: "UNSET"}},
	}
	assert.Equal(t, "UPDATED CCD Simulator.CONNECTION [Ok   ] CONNECT=On DISCONNECT=Off",
		f.FormatChange(property.Change{Kind: property.ChangeUpdated, Property: p}))
	assert.Equal(t, "DELETED CCD Simulator.CONNECTION",
		f.FormatChange(property.Change{Kind: property.ChangeDeleted, Property: p}))
}
