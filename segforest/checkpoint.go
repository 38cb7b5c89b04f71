package segforest

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/pkg/errors"
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"
	"go.uber.org/multierr"
)

// TensorInfo describes one named tensor stored in a checkpoint.
type TensorInfo struct {
	Name  string
	Shape []int64
	DType string
}

// Save writes all model parameters to path, sorted by name so the file
// order is the same on every save.
func Save(vs *nn.VarStore, path string) error {
	vars := vs.Variables()
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	named := make([]ts.NamedTensor, 0, len(names))
	for _, name := range names {
		x := vars[name]
		named = append(named, ts.NamedTensor{Name: name, Tensor: &x})
	}
	if err := ts.SaveMultiNew(named, path); err != nil {
		return errors.Wrapf(err, "save checkpoint %q", path)
	}
	return nil
}

// Load restores every variable of vs from path. It fails if the checkpoint
// misses any variable or holds it with a different shape.
func Load(vs *nn.VarStore, path string) error {
	named, err := ts.LoadMulti(path)
	if err != nil {
		return errors.Wrapf(err, "read checkpoint %q", path)
	}
	saved := make(map[string][]int64, len(named))
	for _, nt := range named {
		saved[nt.Name] = nt.Tensor.MustSize()
		nt.Tensor.MustDrop()
	}

	want := make(map[string][]int64)
	for name, v := range vs.Variables() {
		want[name] = v.MustSize()
	}
	names := make([]string, 0, len(want))
	for name := range want {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs error
	for _, name := range names {
		shape, ok := saved[name]
		switch {
		case !ok:
			errs = multierr.Append(errs, errors.Errorf("missing tensor %q", name))
		case !reflect.DeepEqual(shape, want[name]):
			errs = multierr.Append(errs, errors.Errorf("tensor %q has shape %v, model expects %v", name, shape, want[name]))
		}
	}
	if errs != nil {
		return errors.Wrapf(errs, "checkpoint %q does not match model", path)
	}

	if err := vs.Load(path); err != nil {
		return errors.Wrapf(err, "load checkpoint %q", path)
	}
	return nil
}

// LoadPretrained restores the variables found in path (e.g. pretrained
// encoder weights) and returns the names of variables left untouched.
func LoadPretrained(vs *nn.VarStore, path string) ([]string, error) {
	missing, err := vs.LoadPartial(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load pretrained weights %q", path)
	}
	return missing, nil
}

// Inspect lists the tensors stored in a checkpoint in file order.
func Inspect(path string) ([]TensorInfo, error) {
	named, err := ts.LoadMulti(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read checkpoint %q", path)
	}

	infos := make([]TensorInfo, 0, len(named))
	for _, nt := range named {
		infos = append(infos, TensorInfo{
			Name:  nt.Name,
			Shape: nt.Tensor.MustSize(),
			DType: fmt.Sprint(nt.Tensor.DType()),
		})
		nt.Tensor.MustDrop()
	}

	return infos, nil
}

// Head returns the name and first n values of the first tensor in a
// checkpoint.
func Head(path string, n int64) (string, []float64, error) {
	named, err := ts.LoadMulti(path)
	if err != nil {
		return "", nil, errors.Wrapf(err, "read checkpoint %q", path)
	}
	defer func() {
		for _, nt := range named {
			nt.Tensor.MustDrop()
		}
	}()
	if len(named) == 0 {
		return "", nil, errors.Errorf("checkpoint %q is empty", path)
	}

	first := named[0]
	flat := first.Tensor.MustFlatten(0, -1, false)
	if numel := flat.MustSize()[0]; n > numel {
		n = numel
	}
	head := flat.MustNarrow(0, 0, n, true)
	values := head.Float64Values()
	head.MustDrop()

	return first.Name, values, nil
}
