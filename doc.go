/*
go-visnav drives a small robot car toward a visually detected target, either
an ArUco fiducial marker or a colored object, by closing a control loop between
a camera frame source and a short range wireless actuator link.

The root package holds the data passed between the stages of the pipeline,

	frame -> detector -> geometry -> control -> mode -> wire -> transport

whilst each stage lives in its own subpackage.  The engine subpackage glues
the stages into a single cooperative control loop.

These have been tested with an ESP32 based car exposing throttle, steering,
omega and LED characteristics over BLE, and with a serial bridge to the same
firmware.

See example code and usage in the example subdirectory.
*/
package visnav
