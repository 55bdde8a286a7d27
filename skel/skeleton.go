package skel

// NoParent is the parent index of root joints.
const NoParent = -1

type RawJoint struct {
	Name      string
	Transform Transform
	Children  []*RawJoint
}

// RawSkeleton is the mutable joint hierarchy handed to BuildSkeleton.
type RawSkeleton struct {
	Roots []*RawJoint
}

// Walk visits every joint depth-first, parents before children.
func (r *RawSkeleton) Walk(fn func(j *RawJoint, parent *RawJoint)) {
	var walk func(j, parent *RawJoint)
	walk = func(j, parent *RawJoint) {
		fn(j, parent)
		for _, c := range j.Children {
			walk(c, j)
		}
	}
	for _, root := range r.Roots {
		walk(root, nil)
	}
}

func (r *RawSkeleton) NumJoints() int {
	n := 0
	r.Walk(func(*RawJoint, *RawJoint) { n++ })
	return n
}

func (r *RawSkeleton) Validate() error {
	if r.NumJoints() == 0 {
		return validationErrorf("skeleton has no joints")
	}
	var err error
	r.Walk(func(j *RawJoint, _ *RawJoint) {
		if err != nil {
			return
		}
		if j.Name == "" {
			err = validationErrorf("joint with empty name")
		} else if !j.Transform.IsFinite() {
			err = validationErrorf("joint %s has a non-finite transform", j.Name)
		}
	})
	return err
}

// Skeleton is an immutable flattened joint hierarchy. Joints are stored in
// depth-first order so that a parent always precedes its children.
type Skeleton struct {
	names   []string
	parents []int
	rest    []SoaTransform
}

func BuildSkeleton(raw *RawSkeleton) (*Skeleton, error) {
	if err := raw.Validate(); err != nil {
		return nil, err
	}
	s := &Skeleton{}
	var rest []Transform
	var add func(j *RawJoint, parent int)
	add = func(j *RawJoint, parent int) {
		idx := len(s.names)
		s.names = append(s.names, j.Name)
		s.parents = append(s.parents, parent)
		t := j.Transform
		t.Rotation = *t.Rotation.Normalized()
		rest = append(rest, t)
		for _, c := range j.Children {
			add(c, idx)
		}
	}
	for _, root := range raw.Roots {
		add(root, NoParent)
	}
	s.rest = packTransforms(rest)
	return s, nil
}

func packTransforms(ts []Transform) []SoaTransform {
	soa := make([]SoaTransform, NumSoa(len(ts)))
	for i := range soa {
		soa[i] = SoaIdentity()
	}
	for i, t := range ts {
		SetJointTransform(soa, i, t)
	}
	return soa
}

func (s *Skeleton) NumJoints() int {
	return len(s.names)
}

func (s *Skeleton) NumSoaJoints() int {
	return len(s.rest)
}

func (s *Skeleton) JointNames() []string {
	return s.names
}

func (s *Skeleton) JointParents() []int {
	return s.parents
}

func (s *Skeleton) RestPose(joint int) Transform {
	return JointTransform(s.rest, joint)
}

func (s *Skeleton) RestPoses() []SoaTransform {
	return s.rest
}

// JointIndex returns the index of the named joint, or -1.
func (s *Skeleton) JointIndex(name string) int {
	for i, n := range s.names {
		if n == name {
			return i
		}
	}
	return -1
}

// Children returns the direct children of joint.
func (s *Skeleton) Children(joint int) []int {
	var children []int
	for i, p := range s.parents {
		if p == joint {
			children = append(children, i)
		}
	}
	return children
}

// Depth returns the number of ancestors of joint.
func (s *Skeleton) Depth(joint int) int {
	d := 0
	for p := s.parents[joint]; p != NoParent; p = s.parents[p] {
		d++
	}
	return d
}
