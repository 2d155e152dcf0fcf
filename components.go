package arbor

// --- TransformComponent ---

// TransformComponent mirrors the owning node's transform. Setters write
// through to the owner; while detached they only update the mirror.
type TransformComponent struct {
	BaseComponent
	mirror Transform
}

// NewTransformComponent creates a detached transform mirror.
func NewTransformComponent() *TransformComponent {
	return &TransformComponent{mirror: IdentityTransform}
}

func (c *TransformComponent) Kind() ComponentKind { return KindTransform }

// OnAttach copies the owner's current transform into the mirror.
func (c *TransformComponent) OnAttach() { c.mirror = c.owner.Transform }

// Update refreshes the mirror from the owner. It runs after scripts, physics
// and animation, so the mirror holds the tick's final transform.
func (c *TransformComponent) Update(dt float64) {
	if c.owner != nil {
		c.mirror = c.owner.Transform
	}
}

// Transform returns the mirrored transform.
func (c *TransformComponent) Transform() Transform { return c.mirror }

func (c *TransformComponent) Position() Vec3 { return c.mirror.Position }
func (c *TransformComponent) Rotation() Vec3 { return c.mirror.Rotation }
func (c *TransformComponent) Scale() Vec3    { return c.mirror.Scale }

func (c *TransformComponent) SetPosition(p Vec3) {
	c.mirror.Position = p
	c.push()
}

func (c *TransformComponent) SetRotation(r Vec3) {
	c.mirror.Rotation = r
	c.push()
}

func (c *TransformComponent) SetScale(s Vec3) {
	c.mirror.Scale = s
	c.push()
}

func (c *TransformComponent) push() {
	if c.owner != nil {
		c.owner.Transform = c.mirror
	}
}

// --- RendererComponent ---

// RendererComponent holds presentation-only material state. It has no
// per-tick behavior.
type RendererComponent struct {
	BaseComponent
	MeshType  string
	Color     Color
	Metalness float64
	Roughness float64
}

// NewRendererComponent creates a renderer with a white, mid-rough material.
func NewRendererComponent(meshType string) *RendererComponent {
	return &RendererComponent{
		MeshType:  meshType,
		Color:     ColorWhite,
		Roughness: 0.5,
	}
}

func (c *RendererComponent) Kind() ComponentKind { return KindRenderer }

// SetColor sets the material color.
func (c *RendererComponent) SetColor(col Color) { c.Color = col }

// SetColorHex parses "#rrggbb[aa]" and sets the material color.
func (c *RendererComponent) SetColorHex(hex string) error {
	col, err := ParseHexColor(hex)
	if err != nil {
		return err
	}
	c.Color = col
	return nil
}

// --- PhysicsComponent ---

// Gravity is the constant acceleration applied to bodies with UseGravity.
var Gravity = Vec3{0, -9.81, 0}

// PhysicsComponent integrates a point mass with semi-implicit Euler at the
// fixed step. Forces are accumulated into Acceleration and cleared every
// step, so they must be reapplied each tick.
type PhysicsComponent struct {
	BaseComponent
	Mass         float64
	Velocity     Vec3
	Acceleration Vec3
	UseGravity   bool
	IsKinematic  bool
}

// NewPhysicsComponent creates a unit-mass body affected by gravity.
func NewPhysicsComponent() *PhysicsComponent {
	return &PhysicsComponent{Mass: 1, UseGravity: true}
}

func (c *PhysicsComponent) Kind() ComponentKind { return KindPhysics }

// ApplyForce accumulates f/Mass into the acceleration for the next step.
// Ignored for non-positive mass.
func (c *PhysicsComponent) ApplyForce(f Vec3) {
	if c.Mass <= 0 {
		return
	}
	c.Acceleration = c.Acceleration.Add(f.Mul(1 / c.Mass))
}

// ApplyImpulse changes the velocity immediately by j/Mass.
func (c *PhysicsComponent) ApplyImpulse(j Vec3) {
	if c.Mass <= 0 {
		return
	}
	c.Velocity = c.Velocity.Add(j.Mul(1 / c.Mass))
}

// FixedUpdate integrates one step: a += g, v += a*dt, p += v*dt, a = 0.
func (c *PhysicsComponent) FixedUpdate(dt float64) {
	if c.IsKinematic || c.owner == nil {
		c.Acceleration = Vec3{}
		return
	}
	if c.UseGravity {
		c.Acceleration = c.Acceleration.Add(Gravity)
	}
	c.Velocity = c.Velocity.Add(c.Acceleration.Mul(dt))
	c.owner.Translate(c.Velocity.Mul(dt))
	c.Acceleration = Vec3{}
}
