package mem_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/diibridge/mem"
)

const (
	base = uint64(0x80000000)
	size = uint64(0x1000)
)

var _ = Describe("Memory", func() {
	var m *mem.Memory

	BeforeEach(func() {
		var err error
		m, err = mem.New(base, size)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Creation", func() {
		It("should start zeroed", func() {
			v, ok := m.ReadWord(base + size - 4)
			Expect(ok).To(BeTrue())
			Expect(v).To(BeZero())
		})

		It("should reject a size that is not a word multiple", func() {
			_, err := mem.New(base, 6)
			Expect(err).To(MatchError(mem.ErrInvalidWindow))
		})

		It("should reject a window that wraps the address space", func() {
			_, err := mem.New(0xFFFFFFFFFFFFF000, 0x2000)
			Expect(err).To(MatchError(mem.ErrInvalidWindow))
		})
	})

	Describe("Masked writes", func() {
		It("should replace only the masked bytes", func() {
			Expect(m.WriteWord(base+0x10, 0x11223344, 0xF)).To(BeTrue())
			Expect(m.WriteWord(base+0x10, 0xAABBCCDD, 0b0011)).To(BeTrue())

			v, ok := m.ReadWord(base + 0x10)
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(uint32(0x1122CCDD)))
		})

		It("should merge into zeroed memory", func() {
			m.WriteWord(base+0x10, 0xAABBCCDD, 0b0011)

			v, _ := m.ReadWord(base + 0x10)
			Expect(v).To(Equal(uint32(0x0000CCDD)))
		})

		It("should write nothing with an empty mask", func() {
			m.WriteWord(base, 0xFFFFFFFF, 0)

			v, _ := m.ReadWord(base)
			Expect(v).To(BeZero())
		})

		It("should hold the merge property for every mask", func() {
			const prev = uint32(0x01020304)
			const val = uint32(0xA0B0C0D0)

			for mask := uint8(0); mask < 16; mask++ {
				addr := base + uint64(mask)*4
				m.WriteWord(addr, prev, 0xF)
				m.WriteWord(addr, val, mask)

				want := prev
				for i := 0; i < 4; i++ {
					if mask&(1<<i) != 0 {
						lane := uint32(0xFF) << (8 * i)
						want = want&^lane | val&lane
					}
				}

				got, ok := m.ReadWord(addr)
				Expect(ok).To(BeTrue())
				Expect(got).To(Equal(want), "mask %04b", mask)
			}
		})
	})

	Describe("Bounds", func() {
		It("should accept the last full word", func() {
			Expect(m.WriteWord(base+size-4, 1, 0xF)).To(BeTrue())
		})

		DescribeTable("should reject out-of-range accesses",
			func(addr uint64) {
				_, ok := m.ReadWord(addr)
				Expect(ok).To(BeFalse())
				Expect(m.WriteWord(addr, 0xFFFFFFFF, 0xF)).To(BeFalse())
			},
			Entry("below base", base-4),
			Entry("straddling the end", base+size-2),
			Entry("at the end", base+size),
			Entry("far above", uint64(0xFFFFFFFFFFFFFFFE)),
		)

		It("should leave memory untouched on a rejected write", func() {
			m.WriteWord(base+size-4, 0x11111111, 0xF)
			m.WriteWord(base+size-2, 0xFFFFFFFF, 0xF)

			v, _ := m.ReadWord(base + size - 4)
			Expect(v).To(Equal(uint32(0x11111111)))
		})

		It("should count faults", func() {
			m.ReadWord(0)
			m.WriteWord(0, 0, 0xF)

			Expect(m.Stats().Faults).To(Equal(uint64(2)))
		})
	})

	Describe("Reset", func() {
		It("should zero every byte", func() {
			for a := base; a < base+size; a += 4 {
				m.WriteWord(a, 0xFFFFFFFF, 0xF)
			}

			m.Reset()

			for a := base; a < base+size; a += 4 {
				v, _ := m.ReadWord(a)
				Expect(v).To(BeZero())
			}
		})
	})
})
