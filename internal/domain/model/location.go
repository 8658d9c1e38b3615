package model

type Point struct {
	Lat float64
	Lon float64
}

type Location struct {
	Point   Point
	City    string
	Country string
}
