package tracker

// kalman1D is a scalar constant-position (random-walk) Kalman filter, with
// no velocity term, used to smooth one
// coordinate of a tracked box between detections. Four independent
// instances (x1, y1, x2, y2) make up a Track's motion model; this mirrors
// treating each axis as its own 1-D estimation problem rather than
// maintaining a single 8-state matrix filter.
type kalman1D struct {
	x           float64 // state estimate
	p           float64 // estimate uncertainty
	q           float64 // process noise
	r           float64 // measurement noise
	initialized bool
}

func newKalman1D() *kalman1D {
	return &kalman1D{p: 1.0, q: 0.05, r: 0.6}
}

// predict advances the estimate one step with no new measurement.
func (kf *kalman1D) predict() float64 {
	if !kf.initialized {
		return kf.x
	}
	kf.p += kf.q
	return kf.x
}

// update incorporates a new measurement and returns the filtered value.
func (kf *kalman1D) update(measurement float64) float64 {
	if !kf.initialized {
		kf.x = measurement
		kf.initialized = true
		return measurement
	}

	pPred := kf.p + kf.q
	k := pPred / (pPred + kf.r)
	kf.x = kf.x + k*(measurement-kf.x)
	kf.p = (1 - k) * pPred
	return kf.x
}
